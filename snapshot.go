package main

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SnapshotWriter persists round-indexed dumps of the full world view.
// Snapshots are for inspection and recovery tooling; nothing replays them
// back into a live world, so they do not need to bit-reproduce past rounds.
type SnapshotWriter struct {
	store  *Store
	logger *zap.Logger
}

// NewSnapshotWriter creates the writer over the store
func NewSnapshotWriter(store *Store, logger *zap.Logger) *SnapshotWriter {
	return &SnapshotWriter{store: store, logger: logger}
}

// Save serializes and stores one round's full view. Failures are logged and
// dropped; the driver never waits on a retry.
func (sw *SnapshotWriter) Save(view FullView) {
	payload, err := json.Marshal(view)
	if err != nil {
		sw.logger.Warn("snapshot marshal failed", zap.Int("round", view.Round), zap.Error(err))
		return
	}
	if err := sw.store.SaveSnapshot(view.Round, string(payload), view.Timestamp, nowUnixMilli()); err != nil {
		sw.logger.Warn("snapshot write dropped", zap.Int("round", view.Round), zap.Error(err))
		return
	}
	sw.logger.Debug("snapshot saved", zap.Int("round", view.Round), zap.Int("bytes", len(payload)))
}

// Load returns the stored full view for round, if one exists
func (sw *SnapshotWriter) Load(round int) (FullView, bool, error) {
	raw, found, err := sw.store.SnapshotJSON(round)
	if err != nil || !found {
		return FullView{}, false, err
	}
	var view FullView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return FullView{}, false, err
	}
	return view, true, nil
}

// RecentRounds lists the rounds of the newest stored snapshots
func (sw *SnapshotWriter) RecentRounds(limit int) ([]int, error) {
	return sw.store.RecentSnapshotRounds(limit)
}

// PruneOlderThan deletes snapshots created more than keep ago
func (sw *SnapshotWriter) PruneOlderThan(keep time.Duration) {
	cutoff := time.Now().Add(-keep).UnixMilli()
	n, err := sw.store.PruneSnapshotsBefore(cutoff)
	if err != nil {
		sw.logger.Warn("snapshot prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		sw.logger.Info("pruned old snapshots", zap.Int64("deleted", n))
	}
}
