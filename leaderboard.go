package main

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Leaderboard sort keys accepted by Top
const (
	SortByKills     = "kills"
	SortByMaxLength = "max_length"
)

// LeaderboardWriter maintains per-(uid, season) counters in the store.
// The tick driver is its only writer; a store failure on any hook is logged
// and dropped so the game loop never stalls on persistence. Top-N reads go
// to the store with a short TTL cache in front.
type LeaderboardWriter struct {
	store  *Store
	season string
	logger *zap.Logger

	cacheTTL time.Duration
	cacheMu  sync.Mutex
	cache    map[string]topCacheEntry
}

type topCacheEntry struct {
	rows    []LeaderboardRow
	expires time.Time
}

// NewLeaderboardWriter creates the writer for one active season
func NewLeaderboardWriter(store *Store, season string, cacheTTL time.Duration, logger *zap.Logger) *LeaderboardWriter {
	if season == "" {
		season = "all_time"
	}
	return &LeaderboardWriter{
		store:    store,
		season:   season,
		logger:   logger,
		cacheTTL: cacheTTL,
		cache:    make(map[string]topCacheEntry),
	}
}

// Season returns the active season name
func (lb *LeaderboardWriter) Season() string {
	return lb.season
}

// CacheTTLSeconds returns the top-N cache TTL in whole seconds
func (lb *LeaderboardWriter) CacheTTLSeconds() int {
	return int(lb.cacheTTL / time.Second)
}

// RecordFood counts one food eaten and refreshes the length counters
func (lb *LeaderboardWriter) RecordFood(uid, name string, length, round int) {
	if err := lb.store.UpsertFoodEaten(uid, name, lb.season, length, round, nowUnixMilli()); err != nil {
		lb.logger.Warn("leaderboard food write dropped",
			zap.String("uid", uid), zap.Error(err))
	}
}

// RecordKill credits one kill
func (lb *LeaderboardWriter) RecordKill(uid string, round int) {
	if err := lb.store.UpsertKill(uid, lb.season, round, nowUnixMilli()); err != nil {
		lb.logger.Warn("leaderboard kill write dropped",
			zap.String("uid", uid), zap.Error(err))
	}
}

// RecordDeath counts one death and one finished game for the session
func (lb *LeaderboardWriter) RecordDeath(uid string, round int) {
	if err := lb.store.UpsertDeath(uid, lb.season, round, nowUnixMilli()); err != nil {
		lb.logger.Warn("leaderboard death write dropped",
			zap.String("uid", uid), zap.Error(err))
	}
}

// Top returns up to limit rows ordered descending by sortKey (kills or
// max_length), uid ascending as tiebreak. Results are cached for the TTL.
func (lb *LeaderboardWriter) Top(sortKey string, limit, offset int) ([]LeaderboardRow, error) {
	column := ""
	switch sortKey {
	case SortByKills:
		column = "kills"
	case SortByMaxLength:
		column = "max_length"
	default:
		return nil, errBadRequest("unknown leaderboard sort")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	cacheKey := column + "|" + strconv.Itoa(limit) + "|" + strconv.Itoa(offset)
	lb.cacheMu.Lock()
	if entry, ok := lb.cache[cacheKey]; ok && time.Now().Before(entry.expires) {
		rows := entry.rows
		lb.cacheMu.Unlock()
		return rows, nil
	}
	lb.cacheMu.Unlock()

	rows, err := lb.store.TopRows(lb.season, column, limit, offset)
	if err != nil {
		lb.logger.Warn("leaderboard read failed", zap.Error(err))
		return nil, errUnavailable("leaderboard store unreachable")
	}

	lb.cacheMu.Lock()
	lb.cache[cacheKey] = topCacheEntry{rows: rows, expires: time.Now().Add(lb.cacheTTL)}
	lb.cacheMu.Unlock()
	return rows, nil
}
