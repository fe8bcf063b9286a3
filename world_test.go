package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPlayer builds an in-game player with a snake already at full length
// along the row y, head at (headX, y) facing right.
func testPlayer(t *testing.T, id string, headX, y, length int) *Player {
	t.Helper()
	s, err := NewSnake(Point{X: headX - length + 1, Y: y}, length)
	require.NoError(t, err)
	s.SetDirection(DirRight)
	for i := 1; i < length; i++ {
		s.Move()
	}
	p := NewPlayer("100", id, "tester", "#ff0000", "key-"+id, "token-"+id)
	p.Snake = s
	return p
}

func TestWorldAddRemovePlayerMaintainsOccupancy(t *testing.T) {
	w := NewWorld()
	p := testPlayer(t, "p_100_000001", 4, 2, 3)

	w.AddPlayer(p)
	assert.Equal(t, 1, w.PlayerCount())
	for _, b := range p.Snake.Blocks() {
		assert.Equal(t, 1, w.Occupancy()[b])
	}

	w.RemovePlayer(p.ID)
	assert.Equal(t, 0, w.PlayerCount())
	assert.Empty(t, w.Occupancy())
}

func TestWorldAddPlayerIsIdempotent(t *testing.T) {
	w := NewWorld()
	p := testPlayer(t, "p_100_000001", 4, 2, 2)
	w.AddPlayer(p)
	w.AddPlayer(p)
	assert.Equal(t, 1, w.PlayerCount())
	assert.Equal(t, 1, w.Occupancy()[p.Snake.Head()])
}

func TestWorldFoodDeltaTracking(t *testing.T) {
	w := NewWorld()
	w.AddFood(Point{X: 1, Y: 1})
	w.AddFood(Point{X: 1, Y: 1}) // duplicate ignored
	w.AddFood(Point{X: 2, Y: 2})
	w.RemoveFood(Point{X: 2, Y: 2})
	w.RemoveFood(Point{X: 9, Y: 9}) // absent, ignored

	delta := w.DeltaStateView()
	assert.Equal(t, []Point{{X: 1, Y: 1}, {X: 2, Y: 2}}, delta.AddedFoods)
	assert.Equal(t, []Point{{X: 2, Y: 2}}, delta.RemovedFoods)
	assert.Equal(t, 1, w.FoodCount())

	w.ClearDeltaTracking()
	delta = w.DeltaStateView()
	assert.Empty(t, delta.AddedFoods)
	assert.Empty(t, delta.RemovedFoods)
}

func TestWorldFoodsSortedRowMajor(t *testing.T) {
	w := NewWorld()
	w.AddFood(Point{X: 5, Y: 2})
	w.AddFood(Point{X: 0, Y: 7})
	w.AddFood(Point{X: 3, Y: 2})
	assert.Equal(t, []Point{{X: 3, Y: 2}, {X: 5, Y: 2}, {X: 0, Y: 7}}, w.Foods())
}

func TestWorldApplyAndRevertMoveDelta(t *testing.T) {
	w := NewWorld()
	p := testPlayer(t, "p_100_000001", 4, 2, 3)
	w.AddPlayer(p)

	res := p.Snake.Move()
	w.ApplyMoveDelta(res)
	assert.True(t, w.OccupancyConsistent())

	p.Snake.UndoMove(res)
	w.RevertMoveDelta(res)
	assert.True(t, w.OccupancyConsistent())
}

func TestWorldOccupancyConsistencyDetectsDrift(t *testing.T) {
	w := NewWorld()
	p := testPlayer(t, "p_100_000001", 4, 2, 3)
	w.AddPlayer(p)
	require.True(t, w.OccupancyConsistent())

	w.occupancy[Point{X: 9, Y: 9}] = 1
	assert.False(t, w.OccupancyConsistent())

	w.RebuildOccupancy()
	assert.True(t, w.OccupancyConsistent())
}

func TestWorldReleaseCellRefCounts(t *testing.T) {
	// A cell covered by two bodies stays occupied until both release it
	w := NewWorld()
	shared := Point{X: 7, Y: 7}
	w.occupancy[shared] = 2
	w.releaseCell(shared)
	assert.Equal(t, 1, w.occupancy[shared])
	w.releaseCell(shared)
	_, present := w.occupancy[shared]
	assert.False(t, present)
}

func TestWorldSortedLiveIDs(t *testing.T) {
	w := NewWorld()
	b := testPlayer(t, "p_200_000001", 4, 3, 2)
	a := testPlayer(t, "p_100_000001", 4, 2, 2)
	w.AddPlayer(b)
	w.AddPlayer(a)

	assert.Equal(t, []string{"p_100_000001", "p_200_000001"}, w.SortedLiveIDs())

	a.SetInGame(false)
	assert.Equal(t, []string{"p_200_000001"}, w.SortedLiveIDs())
}

func TestWorldViewsOrderedAndComplete(t *testing.T) {
	w := NewWorld()
	a := testPlayer(t, "p_100_000001", 4, 2, 3)
	w.AddPlayer(a)
	w.AddFood(Point{X: 8, Y: 8})
	w.AdvanceRound(1000, 500)

	full := w.FullView()
	assert.Equal(t, 1, full.Round)
	assert.Equal(t, int64(1000), full.Timestamp)
	assert.Equal(t, int64(1500), full.NextRoundTimestamp)
	require.Len(t, full.Players, 1)
	assert.Equal(t, a.Snake.Head(), full.Players[0].Head)
	assert.Len(t, full.Players[0].Blocks, 3)

	delta := w.DeltaStateView()
	require.Len(t, delta.Players, 1)
	assert.Equal(t, "right", delta.Players[0].Direction)
	require.Len(t, delta.JoinedPlayers, 1)
	assert.Equal(t, a.ID, delta.JoinedPlayers[0].ID)
}

func TestWorldRemovePlayerKeepsDeadSessionOutOfViews(t *testing.T) {
	w := NewWorld()
	a := testPlayer(t, "p_100_000001", 4, 2, 2)
	w.AddPlayer(a)
	w.ClearDeltaTracking()

	w.TrackDied(a.ID)
	w.RemovePlayer(a.ID)
	a.SetInGame(false)

	full := w.FullView()
	assert.Empty(t, full.Players)
	delta := w.DeltaStateView()
	assert.Equal(t, []string{a.ID}, delta.DiedPlayers)
}

func TestWorldResetClearsEverything(t *testing.T) {
	w := NewWorld()
	w.AddPlayer(testPlayer(t, "p_100_000001", 4, 2, 2))
	w.AddFood(Point{X: 0, Y: 0})
	w.AdvanceRound(100, 500)

	w.Reset()

	assert.Equal(t, 0, w.PlayerCount())
	assert.Equal(t, 0, w.FoodCount())
	assert.Empty(t, w.Occupancy())
	assert.Equal(t, 0, w.Round())
	delta := w.DeltaStateView()
	assert.Empty(t, delta.AddedFoods)
	assert.Empty(t, delta.DiedPlayers)
}
