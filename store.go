package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// All persisted timestamps are milliseconds since epoch.

const sqlCreatePlayers = `
CREATE TABLE IF NOT EXISTS players (
    uid TEXT PRIMARY KEY,
    paste TEXT NOT NULL,
    key TEXT UNIQUE NOT NULL,
    created_at INTEGER NOT NULL,
    last_login INTEGER NOT NULL
);`

const sqlCreateLeaderboard = `
CREATE TABLE IF NOT EXISTS leaderboard (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uid TEXT NOT NULL,
    player_name TEXT NOT NULL,
    season_id TEXT NOT NULL DEFAULT 'all_time',
    season_start INTEGER NOT NULL DEFAULT 0,
    season_end INTEGER NOT NULL DEFAULT 0,
    now_length INTEGER NOT NULL DEFAULT 0,
    max_length INTEGER NOT NULL DEFAULT 0,
    kills INTEGER DEFAULT 0,
    deaths INTEGER DEFAULT 0,
    games_played INTEGER DEFAULT 0,
    total_food INTEGER DEFAULT 0,
    last_round INTEGER NOT NULL DEFAULT 0,
    timestamp INTEGER NOT NULL,
    FOREIGN KEY (uid) REFERENCES players(uid),
    UNIQUE (uid, season_id)
);`

const sqlCreateSnapshots = `
CREATE TABLE IF NOT EXISTS game_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    round INTEGER NOT NULL,
    game_state TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);`

// Store is the relational store behind accounts, the leaderboard and world
// snapshots. sqlite in WAL mode with a busy timeout; the driver is the only
// writer during a round, so its own transaction discipline suffices.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenStore opens (or creates) the database at path and runs migrations.
// Migration is additive only: missing columns are added with defaults,
// nothing is dropped or rewritten.
func OpenStore(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes all statements; sqlite allows a single writer
	// anyway and a shared pool would split an in-memory database per conn
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database initialized", zap.String("path", path))
	return s, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	for _, stmt := range []string{sqlCreatePlayers, sqlCreateLeaderboard, sqlCreateSnapshots} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}

	// Additive column migration for databases created by older builds
	migrations := []struct {
		table, column, ddl string
	}{
		{"leaderboard", "season_id", "ALTER TABLE leaderboard ADD COLUMN season_id TEXT NOT NULL DEFAULT 'all_time';"},
		{"leaderboard", "season_start", "ALTER TABLE leaderboard ADD COLUMN season_start INTEGER NOT NULL DEFAULT 0;"},
		{"leaderboard", "season_end", "ALTER TABLE leaderboard ADD COLUMN season_end INTEGER NOT NULL DEFAULT 0;"},
		{"leaderboard", "now_length", "ALTER TABLE leaderboard ADD COLUMN now_length INTEGER NOT NULL DEFAULT 0;"},
		{"leaderboard", "last_round", "ALTER TABLE leaderboard ADD COLUMN last_round INTEGER NOT NULL DEFAULT 0;"},
	}
	for _, m := range migrations {
		has, err := s.hasColumn(m.table, m.column)
		if err != nil {
			return err
		}
		if !has {
			if _, err := s.db.Exec(m.ddl); err != nil {
				return fmt.Errorf("add column %s.%s: %w", m.table, m.column, err)
			}
			s.logger.Info("added missing column",
				zap.String("table", m.table), zap.String("column", m.column))
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_leaderboard_uid ON leaderboard(uid);",
		"CREATE INDEX IF NOT EXISTS idx_leaderboard_season_kills ON leaderboard(season_id, kills DESC);",
		"CREATE INDEX IF NOT EXISTS idx_leaderboard_season_max_length ON leaderboard(season_id, max_length DESC);",
		"CREATE INDEX IF NOT EXISTS idx_leaderboard_uid_season ON leaderboard(uid, season_id);",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_round ON game_snapshots(round);",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON game_snapshots(timestamp);",
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// AccountCreds returns the stored key and paste proof for uid
func (s *Store) AccountCreds(uid string) (key, paste string, found bool, err error) {
	err = s.db.QueryRow("SELECT key, paste FROM players WHERE uid = ?", uid).Scan(&key, &paste)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return key, paste, true, nil
}

// InsertAccount registers a new account
func (s *Store) InsertAccount(uid, paste, key string, nowMs int64) error {
	_, err := s.db.Exec(
		"INSERT INTO players (uid, paste, key, created_at, last_login) VALUES (?, ?, ?, ?, ?)",
		uid, paste, key, nowMs, nowMs)
	return err
}

// UpdateAccountKey stores a new proof and key for an existing account
func (s *Store) UpdateAccountKey(uid, paste, key string, nowMs int64) error {
	_, err := s.db.Exec(
		"UPDATE players SET paste = ?, key = ?, last_login = ? WHERE uid = ?",
		paste, key, nowMs, uid)
	return err
}

// TouchLogin refreshes the account's last-login timestamp
func (s *Store) TouchLogin(uid string, nowMs int64) error {
	_, err := s.db.Exec("UPDATE players SET last_login = ? WHERE uid = ?", nowMs, uid)
	return err
}

// UIDForKey resolves an account key to its uid
func (s *Store) UIDForKey(key string) (string, bool, error) {
	var uid string
	err := s.db.QueryRow("SELECT uid FROM players WHERE key = ?", key).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return uid, true, nil
}

// UpsertFoodEaten bumps total_food and the length counters for (uid, season)
func (s *Store) UpsertFoodEaten(uid, name, season string, length, round int, nowMs int64) error {
	_, err := s.db.Exec(`
INSERT INTO leaderboard (uid, player_name, season_id, now_length, max_length, total_food, last_round, timestamp)
VALUES (?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(uid, season_id) DO UPDATE SET
    player_name = excluded.player_name,
    now_length = excluded.now_length,
    max_length = MAX(max_length, excluded.max_length),
    total_food = total_food + 1,
    last_round = excluded.last_round,
    timestamp = excluded.timestamp`,
		uid, name, season, length, length, round, nowMs)
	return err
}

// UpsertKill bumps the kill counter for (uid, season)
func (s *Store) UpsertKill(uid, season string, round int, nowMs int64) error {
	_, err := s.db.Exec(`
INSERT INTO leaderboard (uid, player_name, season_id, kills, last_round, timestamp)
VALUES (?, '', ?, 1, ?, ?)
ON CONFLICT(uid, season_id) DO UPDATE SET
    kills = kills + 1,
    last_round = excluded.last_round,
    timestamp = excluded.timestamp`,
		uid, season, round, nowMs)
	return err
}

// UpsertDeath bumps deaths and games_played and zeroes the live length
func (s *Store) UpsertDeath(uid, season string, round int, nowMs int64) error {
	_, err := s.db.Exec(`
INSERT INTO leaderboard (uid, player_name, season_id, deaths, games_played, last_round, timestamp)
VALUES (?, '', ?, 1, 1, ?, ?)
ON CONFLICT(uid, season_id) DO UPDATE SET
    deaths = deaths + 1,
    games_played = games_played + 1,
    now_length = 0,
    last_round = excluded.last_round,
    timestamp = excluded.timestamp`,
		uid, season, round, nowMs)
	return err
}

// TopRows reads the season's leaderboard ordered by sortColumn descending,
// uid ascending as the stable secondary order. sortColumn must come from a
// fixed whitelist; it is interpolated, not bound.
func (s *Store) TopRows(season, sortColumn string, limit, offset int) ([]LeaderboardRow, error) {
	query := fmt.Sprintf(`
SELECT uid, player_name, now_length, max_length, kills, deaths, games_played, total_food, last_round
FROM leaderboard WHERE season_id = ?
ORDER BY %s DESC, uid ASC LIMIT ? OFFSET ?`, sortColumn)

	rows, err := s.db.Query(query, season, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LeaderboardRow{}
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.UID, &r.Name, &r.NowLength, &r.MaxLength,
			&r.Kills, &r.Deaths, &r.GamesPlayed, &r.TotalFood, &r.LastRound); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveSnapshot stores one round's serialized world state
func (s *Store) SaveSnapshot(round int, stateJSON string, timestampMs, nowMs int64) error {
	_, err := s.db.Exec(
		"INSERT INTO game_snapshots (round, game_state, timestamp, created_at) VALUES (?, ?, ?, ?)",
		round, stateJSON, timestampMs, nowMs)
	return err
}

// SnapshotJSON loads the most recent snapshot stored for round
func (s *Store) SnapshotJSON(round int) (string, bool, error) {
	var state string
	err := s.db.QueryRow(
		"SELECT game_state FROM game_snapshots WHERE round = ? ORDER BY id DESC LIMIT 1",
		round).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return state, true, nil
}

// RecentSnapshotRounds lists the newest snapshot rounds, newest first
func (s *Store) RecentSnapshotRounds(limit int) ([]int, error) {
	rows, err := s.db.Query(
		"SELECT round FROM game_snapshots ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var round int
		if err := rows.Scan(&round); err != nil {
			return nil, err
		}
		out = append(out, round)
	}
	return out, rows.Err()
}

// PruneSnapshotsBefore deletes snapshots created before cutoffMs
func (s *Store) PruneSnapshotsBefore(cutoffMs int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM game_snapshots WHERE created_at < ?", cutoffMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
