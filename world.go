package main

import (
	"sort"
	"sync"
)

// World holds the authoritative game state: the session registry, the food
// set with its position index, the occupancy index, and the per-round delta
// tracking buffers. One RWMutex guards it all: the driver takes the write
// lock once per round for the whole resolve-and-publish phase, readers take
// shared access to snapshot a consistent view.
type World struct {
	mu sync.RWMutex

	round              int
	timestamp          int64 // ms since epoch of the round's resolution
	nextRoundTimestamp int64

	players map[string]*Player  // session ID -> player
	foods   map[Point]struct{}  // at most one food per cell
	// occupancy maps a cell to the count of live snake bodies covering it.
	// Maintained incrementally from MoveResult records; rebuilt from scratch
	// when it disagrees with the bodies.
	occupancy map[Point]int

	// Delta tracking, cleared at the start of every round
	joinedPlayers []string
	diedPlayers   []string
	addedFoods    []Point
	removedFoods  []Point
}

// NewWorld initializes an empty world at round 0
func NewWorld() *World {
	return &World{
		players:   make(map[string]*Player),
		foods:     make(map[Point]struct{}),
		occupancy: make(map[Point]int),
	}
}

// Round returns the current round (caller must hold at least RLock)
func (w *World) Round() int {
	return w.round
}

// AdvanceRound bumps the round counter and timestamps
// (caller must hold mu.Lock)
func (w *World) AdvanceRound(nowMs, roundTimeMs int64) {
	w.round++
	w.timestamp = nowMs
	w.nextRoundTimestamp = nowMs + roundTimeMs
}

// AddPlayer registers a joined session and records it in the round's delta.
// The player's snake blocks enter the occupancy index.
// (caller must hold mu.Lock)
func (w *World) AddPlayer(p *Player) {
	if _, exists := w.players[p.ID]; exists {
		return
	}
	w.players[p.ID] = p
	w.joinedPlayers = append(w.joinedPlayers, p.ID)
	if p.Snake != nil && p.Snake.Alive() {
		for _, b := range p.Snake.Blocks() {
			w.occupancy[b]++
		}
	}
}

// RemovePlayer drops a session from the world, releasing its occupancy.
// The identity directory keeps the session so a stale token resolves to a
// dead player rather than vanishing. (caller must hold mu.Lock)
func (w *World) RemovePlayer(sessionID string) {
	p, ok := w.players[sessionID]
	if !ok {
		return
	}
	if p.Snake != nil && p.Snake.Alive() {
		for _, b := range p.Snake.Blocks() {
			w.releaseCell(b)
		}
	}
	delete(w.players, sessionID)
}

// Player returns the session with the given ID (caller must hold RLock)
func (w *World) Player(sessionID string) (*Player, bool) {
	p, ok := w.players[sessionID]
	return p, ok
}

// LivePlayers returns all in-game players with live snakes
// (caller must hold at least RLock)
func (w *World) LivePlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		if p.AliveInGame() {
			out = append(out, p)
		}
	}
	return out
}

// SortedLiveIDs returns live session IDs in ascending order. The driver
// resolves moves in this order so a round is deterministic for a given
// intent set. (caller must hold at least RLock)
func (w *World) SortedLiveIDs() []string {
	ids := make([]string, 0, len(w.players))
	for id, p := range w.players {
		if p.AliveInGame() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// PlayerCount returns the number of live in-game sessions
// (caller must hold at least RLock)
func (w *World) PlayerCount() int {
	n := 0
	for _, p := range w.players {
		if p.AliveInGame() {
			n++
		}
	}
	return n
}

// AddFood places a food at pos and records it in the round's delta.
// Cells holding food already are left alone. (caller must hold mu.Lock)
func (w *World) AddFood(pos Point) {
	if _, exists := w.foods[pos]; exists {
		return
	}
	w.foods[pos] = struct{}{}
	w.addedFoods = append(w.addedFoods, pos)
}

// RemoveFood removes the food at pos, if any, and records the removal
// (caller must hold mu.Lock)
func (w *World) RemoveFood(pos Point) {
	if _, exists := w.foods[pos]; !exists {
		return
	}
	delete(w.foods, pos)
	w.removedFoods = append(w.removedFoods, pos)
}

// HasFoodAt reports whether a food sits at pos (caller must hold RLock)
func (w *World) HasFoodAt(pos Point) bool {
	_, ok := w.foods[pos]
	return ok
}

// FoodCount returns the number of foods (caller must hold at least RLock)
func (w *World) FoodCount() int {
	return len(w.foods)
}

// Foods returns the food positions in a stable row-major order
// (caller must hold at least RLock)
func (w *World) Foods() []Point {
	out := make([]Point, 0, len(w.foods))
	for pos := range w.foods {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FoodSet returns the live food position index (caller must hold RLock;
// callers must not mutate it)
func (w *World) FoodSet() map[Point]struct{} {
	return w.foods
}

// Occupancy returns the live occupancy index (caller must hold RLock;
// callers must not mutate it)
func (w *World) Occupancy() map[Point]int {
	return w.occupancy
}

// ApplyMoveDelta folds one snake's MoveResult into the occupancy index
// (caller must hold mu.Lock)
func (w *World) ApplyMoveDelta(res MoveResult) {
	if !res.Moved {
		return
	}
	w.occupancy[res.NewHead]++
	if res.TailRemoved {
		w.releaseCell(res.RemovedTail)
	}
}

// RevertMoveDelta undoes ApplyMoveDelta for a rejected step
// (caller must hold mu.Lock)
func (w *World) RevertMoveDelta(res MoveResult) {
	if !res.Moved {
		return
	}
	w.releaseCell(res.NewHead)
	if res.TailRemoved {
		w.occupancy[res.RemovedTail]++
	}
}

func (w *World) releaseCell(p Point) {
	if n := w.occupancy[p]; n <= 1 {
		delete(w.occupancy, p)
	} else {
		w.occupancy[p] = n - 1
	}
}

// RebuildOccupancy reconstructs the occupancy index from the live bodies.
// The driver falls back to this when the incremental index disagrees with
// the world. (caller must hold mu.Lock)
func (w *World) RebuildOccupancy() {
	w.occupancy = make(map[Point]int, len(w.occupancy))
	for _, p := range w.players {
		if !p.AliveInGame() {
			continue
		}
		for _, b := range p.Snake.Blocks() {
			w.occupancy[b]++
		}
	}
}

// OccupancyConsistent cross-checks the incremental index against the bodies.
// Cheap enough to run every round: both sides are proportional to the total
// body mass. (caller must hold at least RLock)
func (w *World) OccupancyConsistent() bool {
	want := make(map[Point]int)
	for _, p := range w.players {
		if !p.AliveInGame() {
			continue
		}
		for _, b := range p.Snake.Blocks() {
			want[b]++
		}
	}
	if len(want) != len(w.occupancy) {
		return false
	}
	for pos, n := range want {
		if w.occupancy[pos] != n {
			return false
		}
	}
	return true
}

// TrackDied records a death in the round's delta (caller must hold mu.Lock)
func (w *World) TrackDied(sessionID string) {
	w.diedPlayers = append(w.diedPlayers, sessionID)
}

// ClearDeltaTracking resets the per-round change buffers; the driver calls
// it at the start of every round (caller must hold mu.Lock)
func (w *World) ClearDeltaTracking() {
	w.joinedPlayers = w.joinedPlayers[:0]
	w.diedPlayers = w.diedPlayers[:0]
	w.addedFoods = w.addedFoods[:0]
	w.removedFoods = w.removedFoods[:0]
}

// FullView snapshots the complete world for clients
// (caller must hold at least RLock)
func (w *World) FullView() FullView {
	view := FullView{
		Round:              w.round,
		Timestamp:          w.timestamp,
		NextRoundTimestamp: w.nextRoundTimestamp,
		Players:            make([]PlayerView, 0, len(w.players)),
		Foods:              w.Foods(),
	}
	for _, id := range w.SortedLiveIDs() {
		view.Players = append(view.Players, w.players[id].PublicView())
	}
	return view
}

// DeltaStateView snapshots the round's delta for clients
// (caller must hold at least RLock)
func (w *World) DeltaStateView() DeltaView {
	view := DeltaView{
		Round:              w.round,
		Timestamp:          w.timestamp,
		NextRoundTimestamp: w.nextRoundTimestamp,
		Players:            make([]PlayerDeltaView, 0, len(w.players)),
		JoinedPlayers:      []PlayerView{},
		DiedPlayers:        append([]string{}, w.diedPlayers...),
		AddedFoods:         append([]Point{}, w.addedFoods...),
		RemovedFoods:       append([]Point{}, w.removedFoods...),
	}
	for _, id := range w.SortedLiveIDs() {
		view.Players = append(view.Players, w.players[id].DeltaView())
	}
	for _, id := range w.joinedPlayers {
		if p, ok := w.players[id]; ok && p.AliveInGame() {
			view.JoinedPlayers = append(view.JoinedPlayers, p.PublicView())
		}
	}
	return view
}

// Reset clears everything back to round 0 (caller must hold mu.Lock)
func (w *World) Reset() {
	w.round = 0
	w.timestamp = 0
	w.nextRoundTimestamp = 0
	w.players = make(map[string]*Player)
	w.foods = make(map[Point]struct{})
	w.occupancy = make(map[Point]int)
	w.ClearDeltaTracking()
}
