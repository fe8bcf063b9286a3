package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMap(w, h int) *GameMap {
	return NewGameMap(w, h, 42, zap.NewNop())
}

func TestGameMapIsValidPosition(t *testing.T) {
	m := newTestMap(10, 8)
	tests := []struct {
		p    Point
		want bool
	}{
		{Point{X: 0, Y: 0}, true},
		{Point{X: 9, Y: 7}, true},
		{Point{X: 10, Y: 0}, false},
		{Point{X: 0, Y: 8}, false},
		{Point{X: -1, Y: 3}, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, m.IsValidPosition(tc.p), "%v", tc.p)
	}
}

func TestRandomSafeSpawnAvoidsOccupiedArea(t *testing.T) {
	m := newTestMap(20, 20)
	occupancy := map[Point]int{{X: 10, Y: 10}: 1}

	for i := 0; i < 50; i++ {
		spawn := m.RandomSafeSpawn(occupancy, 2)
		require.False(t, spawn.IsNull())
		assert.True(t, m.IsValidPosition(spawn))
		// The occupied cell must be outside the spawn's safety square
		dx, dy := spawn.X-10, spawn.Y-10
		assert.True(t, dx < -2 || dx > 2 || dy < -2 || dy > 2,
			"spawn %v too close to occupied cell", spawn)
	}
}

func TestRandomSafeSpawnFallsBackWhenRectangleEmpty(t *testing.T) {
	// Radius larger than the map collapses the shrunk rectangle; sampling
	// must fall back to the full grid instead of failing outright
	m := newTestMap(5, 5)
	spawn := m.RandomSafeSpawn(map[Point]int{}, 10)
	assert.False(t, spawn.IsNull())
	assert.True(t, m.IsValidPosition(spawn))
}

func TestRandomSafeSpawnReturnsNullOnFullMap(t *testing.T) {
	m := newTestMap(3, 3)
	occupancy := make(map[Point]int)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			occupancy[Point{X: x, Y: y}] = 1
		}
	}
	spawn := m.RandomSafeSpawn(occupancy, 0)
	assert.True(t, spawn.IsNull())
}

func TestGenerateFoodAvoidsCollisionsAndDuplicates(t *testing.T) {
	m := newTestMap(10, 10)
	occupancy := map[Point]int{{X: 0, Y: 0}: 1, {X: 1, Y: 0}: 1}
	existing := map[Point]struct{}{{X: 2, Y: 0}: {}}

	foods := m.GenerateFood(20, occupancy, existing)
	assert.Len(t, foods, 20)

	seen := make(map[Point]struct{})
	for _, f := range foods {
		assert.True(t, m.IsValidPosition(f))
		assert.Zero(t, occupancy[f], "food on a body cell")
		_, dup := seen[f]
		assert.False(t, dup, "duplicate food %v", f)
		_, onExisting := existing[f]
		assert.False(t, onExisting, "food on an existing food cell")
		seen[f] = struct{}{}
	}
}

func TestGenerateFoodClampsToHalfGrid(t *testing.T) {
	m := newTestMap(4, 4)
	foods := m.GenerateFood(100, map[Point]int{}, map[Point]struct{}{})
	assert.LessOrEqual(t, len(foods), 8)
}

func TestTargetFoodCount(t *testing.T) {
	m := newTestMap(10, 10)
	assert.Equal(t, 1, m.TargetFoodCount(0.01))
	assert.Equal(t, 50, m.TargetFoodCount(0.5))
	assert.Equal(t, 100, m.TargetFoodCount(5.0), "density clamps to 1")
	assert.Equal(t, 0, m.TargetFoodCount(-1))
}

func TestClassifyCollision(t *testing.T) {
	m := newTestMap(10, 10)
	a := testPlayer(t, "p_100_000001", 4, 4, 3) // body [(4,4),(3,4),(2,4)]
	b := testPlayer(t, "p_200_000001", 4, 6, 3) // body [(4,6),(3,6),(2,6)]
	all := []*Player{a, b}

	tests := []struct {
		name      string
		newHead   Point
		wantType  CollisionType
		wantOther string
	}{
		{"open cell", Point{X: 5, Y: 4}, CollisionNone, ""},
		{"wall", Point{X: -1, Y: 4}, CollisionWall, ""},
		{"own body", Point{X: 3, Y: 4}, CollisionSelf, ""},
		{"own head cell is not self", Point{X: 4, Y: 4}, CollisionNone, ""},
		{"other snake body", Point{X: 3, Y: 6}, CollisionOtherSnake, "p_200_000001"},
		{"other snake head", Point{X: 4, Y: 6}, CollisionOtherSnake, "p_200_000001"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ct, other := m.ClassifyCollision(a, tc.newHead, all)
			assert.Equal(t, tc.wantType, ct)
			assert.Equal(t, tc.wantOther, other)
		})
	}

	// A dead opponent's former cells are free
	b.SetInGame(false)
	ct, _ := m.ClassifyCollision(a, Point{X: 3, Y: 6}, all)
	assert.Equal(t, CollisionNone, ct)
}
