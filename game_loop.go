package main

import (
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// errShuttingDown rejects intent submissions once shutdown has begun
var errShuttingDown = errors.New("server shutting down")

// GameLoop drives the authoritative simulation at a fixed round period.
// It is the single writer of the world: every round it takes the world write
// lock once, swaps the intent buffers, resolves directions and movement,
// settles collisions and deaths, tops food back up to the density target and
// publishes the round's delta. Readers only ever see a fully resolved round.
type GameLoop struct {
	world      *World
	gameMap    *GameMap
	intents    *intentBuffer
	board      *LeaderboardWriter
	snapshots  *SnapshotWriter
	spectators *SpectatorHub
	metrics    *Metrics
	logger     *zap.Logger

	roundTime     time.Duration
	foodDensity   float64
	snapshotEvery int
	shuttingDown  atomic.Bool
	stop          chan struct{}
	done          chan struct{}
}

// plannedMove is one player's classified step for the current round,
// computed against the pre-move world before anything commits
type plannedMove struct {
	player  *Player
	newHead Point
	class   CollisionType
	otherID string
}

// committedMove is one player's step after it committed, with the eat that
// came with it. The clash pass clears ate when it rejects the step; food
// points are scored only for the steps that stood.
type committedMove struct {
	player *Player
	res    MoveResult
	ate    bool
	length int // body length right after the commit
}

// NewGameLoop wires the driver to the world and its collaborators.
// spectators and snapshots may be nil when those surfaces are disabled.
func NewGameLoop(world *World, gameMap *GameMap, board *LeaderboardWriter,
	snapshots *SnapshotWriter, spectators *SpectatorHub, metrics *Metrics,
	cfg GameConfig, logger *zap.Logger) *GameLoop {
	return &GameLoop{
		world:         world,
		gameMap:       gameMap,
		intents:       newIntentBuffer(),
		board:         board,
		snapshots:     snapshots,
		spectators:    spectators,
		metrics:       metrics,
		logger:        logger,
		roundTime:     time.Duration(cfg.RoundTimeMs) * time.Millisecond,
		foodDensity:   cfg.FoodDensity,
		snapshotEvery: cfg.SnapshotEveryRounds,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// SubmitIntent buffers a direction for the session's next move. Last write
// within a round wins. Intents for sessions the driver no longer knows are
// dropped when the round resolves.
func (gl *GameLoop) SubmitIntent(sessionID string, d Direction) error {
	if gl.shuttingDown.Load() {
		return errShuttingDown
	}
	gl.intents.Submit(sessionID, d)
	return nil
}

// Run advances the world every roundTime until Stop is called.
// The in-flight round always completes before Run returns.
func (gl *GameLoop) Run() {
	defer close(gl.done)
	ticker := time.NewTicker(gl.roundTime)
	defer ticker.Stop()
	gl.logger.Info("game loop started",
		zap.Duration("round_time", gl.roundTime),
		zap.Float64("food_density", gl.foodDensity))

	for {
		select {
		case <-gl.stop:
			return
		case <-ticker.C:
			gl.Tick()
		}
	}
}

// Stop flags shutdown, lets the in-flight round complete and waits for the
// loop goroutine to exit. Intent submissions are rejected from here on.
func (gl *GameLoop) Stop() {
	if gl.shuttingDown.Swap(true) {
		return
	}
	close(gl.stop)
	<-gl.done
}

// Tick resolves one round. Exported so tests can advance the world without
// running the timer.
func (gl *GameLoop) Tick() {
	w := gl.world
	start := time.Now()

	w.mu.Lock()

	// 1. Swap intent buffers; new moves land in the fresh buffer
	pending := gl.intents.Swap()

	// 2. Reset the round's delta tracking
	w.ClearDeltaTracking()

	// 3. Apply directions in deterministic order (ascending session ID).
	// An intent for the opposite of the current direction keeps the old one.
	order := w.SortedLiveIDs()
	for _, id := range order {
		p, ok := w.Player(id)
		if !ok || !p.AliveInGame() {
			continue
		}
		d, hasIntent := pending[id]
		if !hasIntent {
			d = p.Snake.Direction()
		}
		if d == DirNone {
			continue
		}
		p.Snake.SetDirection(d)
	}

	// 4. Classify every step against the pre-move world
	allPlayers := w.LivePlayers()
	planned := make([]plannedMove, 0, len(order))
	for _, id := range order {
		p, ok := w.Player(id)
		if !ok || !p.AliveInGame() || p.Snake.Direction() == DirNone {
			continue
		}
		newHead := p.Snake.Head().Step(p.Snake.Direction())
		class, otherID := gl.gameMap.ClassifyCollision(p, newHead, allPlayers)
		planned = append(planned, plannedMove{player: p, newHead: newHead, class: class, otherID: otherID})
	}

	// 5. Commit clean steps, no-op invincible collisions, settle deaths
	committed := make(map[string]*committedMove, len(planned))
	for _, pm := range planned {
		p := pm.player
		if !p.AliveInGame() {
			continue // died earlier this round
		}
		switch {
		case pm.class == CollisionNone:
			// Eating happens before the step commits: the pending growth
			// keeps the tail, so the body extends in the same round
			ate := w.HasFoodAt(pm.newHead)
			if ate {
				w.RemoveFood(pm.newHead)
				p.Snake.Grow()
			}
			res := p.Snake.Move()
			w.ApplyMoveDelta(res)
			committed[p.ID] = &committedMove{player: p, res: res, ate: ate, length: p.Snake.Length()}
		case p.Snake.InvincibleRounds() > 0:
			// Invincibility turns the fatal step into a no-op; the counter
			// still runs down at the end of the round
			gl.logger.Debug("invincible collision ignored",
				zap.String("session", p.ID),
				zap.String("collision", pm.class.String()))
		default:
			gl.killPlayer(p, pm.class, pm.otherID)
		}
	}

	// 6. Second pass: steps that landed on the same cell. Classification ran
	// against the pre-move world, so two heads stepping into one empty cell
	// both committed; resolve them now under the same invincibility rules.
	gl.resolveHeadClashes(committed)

	// Score the meals that stood, including those of snakes that ate and then
	// died in the clash pass. Rejected steps had their ate flag cleared.
	for _, id := range order {
		if cm, ok := committed[id]; ok && cm.ate {
			gl.board.RecordFood(cm.player.UID, cm.player.Name, cm.length, w.Round())
		}
	}

	// 7. Invincibility counts down for every surviving snake
	for _, p := range w.LivePlayers() {
		p.Snake.DecrementInvincible()
	}

	// 8. Self-heal if the incremental occupancy index drifted from the bodies
	if !w.OccupancyConsistent() {
		gl.logger.Warn("occupancy index inconsistent, rebuilding",
			zap.Int("round", w.Round()))
		w.RebuildOccupancy()
	}

	// 9. Food maintenance back up to the density target
	target := gl.gameMap.TargetFoodCount(gl.foodDensity)
	if deficit := target - w.FoodCount(); deficit > 0 {
		for _, pos := range gl.gameMap.GenerateFood(deficit, w.Occupancy(), w.FoodSet()) {
			w.AddFood(pos)
		}
	}

	// 10. Publish the round
	nowMs := time.Now().UnixMilli()
	w.AdvanceRound(nowMs, gl.roundTime.Milliseconds())

	round := w.Round()
	playerCount := w.PlayerCount()
	foodCount := w.FoodCount()
	delta := w.DeltaStateView()
	var snapshot *FullView
	if gl.snapshots != nil && gl.snapshotEvery > 0 && round%gl.snapshotEvery == 0 {
		full := w.FullView()
		snapshot = &full
	}

	w.mu.Unlock()

	// Off-lock publication: metrics, spectator broadcast, snapshot write
	gl.metrics.ObserveRound(time.Since(start), playerCount, foodCount)
	if gl.spectators != nil {
		gl.spectators.BroadcastDelta(delta)
	}
	if snapshot != nil {
		gl.snapshots.Save(*snapshot)
	}
}

// killPlayer settles one death: the snake dies, the session leaves the world
// (its token keeps resolving to a dead session), the delta records it and the
// leaderboard counters move. A fatal step into another live snake credits
// that snake with a kill unless it was invincible.
// Caller must hold w.mu.Lock.
func (gl *GameLoop) killPlayer(p *Player, class CollisionType, otherID string) {
	w := gl.world
	gl.logger.Info("player died",
		zap.String("session", p.ID),
		zap.String("name", p.Name),
		zap.String("collision", class.String()),
		zap.Int("round", w.Round()))

	w.TrackDied(p.ID)
	w.RemovePlayer(p.ID)
	p.SetInGame(false)

	// Sessions never revive, so every death is the session's first this game
	gl.board.RecordDeath(p.UID, w.Round())

	if class == CollisionOtherSnake && otherID != "" {
		if other, ok := w.Player(otherID); ok && other.AliveInGame() && other.Snake.InvincibleRounds() == 0 {
			gl.board.RecordKill(other.UID, w.Round())
		}
	}
}

// resolveHeadClashes finds live snakes whose committed heads share a cell.
// Mortal snakes in a clash die; invincible snakes get their step rejected
// and stay where they were, with any food eaten on that step put back.
// An invincible survivor is credited with the kills of the mortals it
// clashed with.
// Caller must hold w.mu.Lock.
func (gl *GameLoop) resolveHeadClashes(committed map[string]*committedMove) {
	w := gl.world

	heads := make(map[Point][]*Player)
	for _, id := range w.SortedLiveIDs() {
		if p, ok := w.Player(id); ok && p.AliveInGame() {
			heads[p.Snake.Head()] = append(heads[p.Snake.Head()], p)
		}
	}
	cells := make([]Point, 0, len(heads))
	for cell, group := range heads {
		if len(group) >= 2 {
			cells = append(cells, cell)
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Less(cells[j]) })

	for _, cell := range cells {
		group := heads[cell]
		var invincible, mortal []*Player
		for _, p := range group {
			if p.Snake.InvincibleRounds() > 0 {
				invincible = append(invincible, p)
			} else {
				mortal = append(mortal, p)
			}
		}
		gl.logger.Info("head-on clash",
			zap.Int("x", cell.X), zap.Int("y", cell.Y),
			zap.Int("snakes", len(group)),
			zap.Int("invincible", len(invincible)))

		for _, p := range invincible {
			if cm, ok := committed[p.ID]; ok {
				w.RevertMoveDelta(cm.res)
				p.Snake.UndoMove(cm.res)
				if cm.ate {
					// The meal reverts with the step: the growth credit goes
					// back and the food returns to its cell
					p.Snake.CancelGrowth()
					w.AddFood(cm.res.NewHead)
					cm.ate = false
				}
			}
		}
		for _, p := range mortal {
			gl.killPlayer(p, CollisionOtherSnake, "")
			if len(invincible) > 0 {
				survivor := invincible[0]
				gl.board.RecordKill(survivor.UID, w.Round())
			}
		}
	}
}
