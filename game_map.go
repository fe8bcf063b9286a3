package main

import (
	"math"
	"math/rand"
	"sync"

	"go.uber.org/zap"
)

// CollisionType classifies where a snake's next head cell lands
type CollisionType int

const (
	CollisionNone CollisionType = iota
	CollisionWall
	CollisionSelf
	CollisionOtherSnake
)

func (c CollisionType) String() string {
	switch c {
	case CollisionWall:
		return "wall"
	case CollisionSelf:
		return "self"
	case CollisionOtherSnake:
		return "other_snake"
	}
	return "none"
}

// GameMap knows the grid bounds and owns spawn placement, collision
// classification and food generation. It never mutates world state; the
// driver and the join path feed it the current occupancy and food indices.
type GameMap struct {
	width  int
	height int

	mu  sync.Mutex // guards rng; spawn and food generation can race
	rng *rand.Rand

	logger *zap.Logger
}

// NewGameMap creates a map service over a width x height grid
func NewGameMap(width, height int, seed int64, logger *zap.Logger) *GameMap {
	return &GameMap{
		width:  width,
		height: height,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// Width returns the grid width
func (m *GameMap) Width() int { return m.width }

// Height returns the grid height
func (m *GameMap) Height() int { return m.height }

// IsValidPosition reports whether p lies inside the grid
func (m *GameMap) IsValidPosition(p Point) bool {
	return p.X >= 0 && p.X < m.width && p.Y >= 0 && p.Y < m.height
}

// RandomSafeSpawn samples a cell whose surrounding (2r+1) square holds no
// live body. Sampling is restricted to the rectangle shrunk by safeRadius on
// every side; if that rectangle is empty the whole grid is used instead.
// Attempts scale with the map: min(W*H, max(100, W*H/10)). Returns NullPoint
// when no safe cell turns up.
func (m *GameMap) RandomSafeSpawn(occupancy map[Point]int, safeRadius int) Point {
	if safeRadius < 0 {
		safeRadius = 0
	}
	if m.width <= 0 || m.height <= 0 {
		return NullPoint
	}

	totalCells := m.width * m.height
	maxAttempts := totalCells
	if adaptive := max(100, totalCells/10); adaptive < maxAttempts {
		maxAttempts = adaptive
	}

	minX, maxX := safeRadius, m.width-1-safeRadius
	minY, maxY := safeRadius, m.height-1-safeRadius
	if minX > maxX || minY > maxY {
		// Shrunk rectangle is empty; fall back to the full grid
		minX, maxX = 0, m.width-1
		minY, maxY = 0, m.height-1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := Point{
			X: minX + m.rng.Intn(maxX-minX+1),
			Y: minY + m.rng.Intn(maxY-minY+1),
		}
		if m.isSafeArea(candidate, safeRadius, occupancy) {
			return candidate
		}
	}

	m.logger.Warn("no safe spawn found",
		zap.Int("attempts", maxAttempts),
		zap.Int("safe_radius", safeRadius))
	return NullPoint
}

// isSafeArea checks the (2r+1) square around center for live bodies.
// Out-of-grid cells in the square are skipped, not counted as unsafe.
func (m *GameMap) isSafeArea(center Point, radius int, occupancy map[Point]int) bool {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			p := Point{X: center.X + dx, Y: center.Y + dy}
			if !m.IsValidPosition(p) {
				continue
			}
			if occupancy[p] > 0 {
				return false
			}
		}
	}
	return true
}

// ClassifyCollision reports what newHead would hit: wall first, then the
// snake's own body (head excluded), then any other live snake. For
// other-snake hits the owning session ID comes back so the driver can credit
// the kill. Invincibility never changes the classification; the driver alone
// decides whether a classification is fatal.
func (m *GameMap) ClassifyCollision(p *Player, newHead Point, allPlayers []*Player) (CollisionType, string) {
	if !m.IsValidPosition(newHead) {
		return CollisionWall, ""
	}
	if p.Snake.CollidesWithSelf(newHead) {
		return CollisionSelf, ""
	}
	for _, other := range allPlayers {
		if other == nil || other.ID == p.ID || !other.AliveInGame() {
			continue
		}
		if other.Snake.CollidesWithBody(newHead) {
			return CollisionOtherSnake, other.ID
		}
	}
	return CollisionNone, ""
}

// GenerateFood samples up to count free cells, rejecting cells that hold a
// food already, were produced earlier in this call, or are covered by a live
// body per the occupancy index. Each food gets at most 100 placement tries.
// Requests beyond half the grid are clamped to half.
func (m *GameMap) GenerateFood(count int, occupancy map[Point]int, existingFoods map[Point]struct{}) []Point {
	if count <= 0 || m.width <= 0 || m.height <= 0 {
		return nil
	}

	const maxAttemptsPerFood = 100
	totalCells := m.width * m.height
	if count > totalCells/2 {
		m.logger.Warn("food request exceeds half the grid, clamping",
			zap.Int("requested", count),
			zap.Int("clamped", totalCells/2))
		count = max(1, totalCells/2)
	}

	generated := make(map[Point]struct{}, count)
	foods := make([]Point, 0, count)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < count; i++ {
		placed := false
		for attempt := 0; attempt < maxAttemptsPerFood; attempt++ {
			candidate := Point{X: m.rng.Intn(m.width), Y: m.rng.Intn(m.height)}
			if _, ok := existingFoods[candidate]; ok {
				continue
			}
			if _, ok := generated[candidate]; ok {
				continue
			}
			if occupancy[candidate] > 0 {
				continue
			}
			foods = append(foods, candidate)
			generated[candidate] = struct{}{}
			placed = true
			break
		}
		if !placed {
			m.logger.Warn("food placement gave up",
				zap.Int("food_index", i),
				zap.Int("attempts", maxAttemptsPerFood))
		}
	}
	return foods
}

// TargetFoodCount converts a density in [0,1] into a food count for this grid
func (m *GameMap) TargetFoodCount(density float64) int {
	if density < 0 {
		density = 0
	}
	if density > 1 {
		density = 1
	}
	return int(math.Round(density * float64(m.width) * float64(m.height)))
}

// GenerateByDensity generates round(density*W*H) foods against occupancy
func (m *GameMap) GenerateByDensity(density float64, occupancy map[Point]int, existingFoods map[Point]struct{}) []Point {
	return m.GenerateFood(m.TargetFoodCount(density), occupancy, existingFoods)
}
