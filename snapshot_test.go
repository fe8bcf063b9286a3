package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnapshotSaveLoadRoundtrip(t *testing.T) {
	store := newTestStore(t)
	sw := NewSnapshotWriter(store, zap.NewNop())

	view := FullView{
		Round:              42,
		Timestamp:          1000,
		NextRoundTimestamp: 1500,
		Players: []PlayerView{{
			ID:     "p_100_000001",
			Name:   "alice",
			Color:  "#ff0000",
			Head:   Point{X: 3, Y: 4},
			Blocks: []Point{{X: 3, Y: 4}, {X: 2, Y: 4}},
			Length: 2,
		}},
		Foods: []Point{{X: 8, Y: 8}},
	}
	sw.Save(view)

	loaded, found, err := sw.Load(42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, view, loaded)

	_, found, err = sw.Load(7)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshotRecentRoundsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	sw := NewSnapshotWriter(store, zap.NewNop())
	for _, round := range []int{10, 20, 30} {
		sw.Save(FullView{Round: round})
	}
	rounds, err := sw.RecentRounds(2)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 20}, rounds)
}

func TestSnapshotPruneOlderThan(t *testing.T) {
	store := newTestStore(t)
	sw := NewSnapshotWriter(store, zap.NewNop())
	sw.Save(FullView{Round: 1})

	// Everything was just written; a generous keep window deletes nothing
	sw.PruneOlderThan(time.Hour)
	rounds, err := sw.RecentRounds(10)
	require.NoError(t, err)
	assert.Len(t, rounds, 1)

	// A zero keep window prunes everything written so far
	time.Sleep(2 * time.Millisecond)
	sw.PruneOlderThan(0)
	rounds, err = sw.RecentRounds(10)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}
