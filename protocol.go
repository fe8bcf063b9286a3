package main

// All HTTP responses share a JSON envelope {code, msg, data}; code 0 means
// success, any other code doubles as the HTTP status. The payload shapes:
//
//   status:    {"map_size":{"width":40,"height":30},"round_time":500,"round":42,"player_count":3}
//   full view: {"round":42,"timestamp":...,"next_round_timestamp":...,
//               "players":[{"id","name","color","head":{"x","y"},"blocks":[...],"length","invincible_rounds"}],
//               "foods":[{"x","y"},...]}
//   delta:     {"round","timestamp","next_round_timestamp",
//               "players":[{"id","head","direction","length","invincible_rounds"}],
//               "joined_players":[full player payloads],"died_players":["id",...],
//               "added_foods":[{"x","y"}],"removed_foods":[{"x","y"}]}
//
// Clients fetch the full view on join and whenever a delta shows a round jump
// greater than 1; the server keeps no multi-round history.

// Envelope is the uniform response wrapper
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

// MapSize is the grid dimensions reported by status
type MapSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// StatusView is the payload of GET /api/status
type StatusView struct {
	MapSize     MapSize `json:"map_size"`
	RoundTime   int     `json:"round_time"`
	Round       int     `json:"round"`
	PlayerCount int     `json:"player_count"`
}

// PlayerView is the full per-player payload: body blocks included,
// never the key or token
type PlayerView struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Color            string  `json:"color"`
	Head             Point   `json:"head"`
	Blocks           []Point `json:"blocks"`
	Length           int     `json:"length"`
	InvincibleRounds int     `json:"invincible_rounds"`
}

// PlayerDeltaView is the bandwidth-minimal per-round player record: the head
// moves one cell per round, so the body can be reconstructed client-side
type PlayerDeltaView struct {
	ID               string `json:"id"`
	Head             Point  `json:"head"`
	Direction        string `json:"direction"`
	Length           int    `json:"length"`
	InvincibleRounds int    `json:"invincible_rounds"`
}

// FullView is the authoritative world snapshot for one round
type FullView struct {
	Round              int          `json:"round"`
	Timestamp          int64        `json:"timestamp"`
	NextRoundTimestamp int64        `json:"next_round_timestamp"`
	Players            []PlayerView `json:"players"`
	Foods              []Point      `json:"foods"`
}

// DeltaView carries only what changed since the previous round
type DeltaView struct {
	Round              int               `json:"round"`
	Timestamp          int64             `json:"timestamp"`
	NextRoundTimestamp int64             `json:"next_round_timestamp"`
	Players            []PlayerDeltaView `json:"players"`
	JoinedPlayers      []PlayerView      `json:"joined_players"`
	DiedPlayers        []string          `json:"died_players"`
	AddedFoods         []Point           `json:"added_foods"`
	RemovedFoods       []Point           `json:"removed_foods"`
}

// LeaderboardRow is one persisted score line, keyed by (uid, season)
type LeaderboardRow struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	NowLength   int    `json:"now_length"`
	MaxLength   int    `json:"max_length"`
	Kills       int    `json:"kills"`
	Deaths      int    `json:"deaths"`
	GamesPlayed int    `json:"games_played"`
	TotalFood   int    `json:"total_food"`
	LastRound   int    `json:"last_round"`
}

// LeaderboardView is the payload of GET /api/leaderboard
type LeaderboardView struct {
	Entries         []LeaderboardRow `json:"entries"`
	Season          string           `json:"season"`
	CacheTTLSeconds int              `json:"cache_ttl_seconds"`
}

// JoinView is the payload of POST /api/game/join
type JoinView struct {
	Token    string   `json:"token"`
	ID       string   `json:"id"`
	MapState FullView `json:"map_state"`
}

// LoginView is the payload of POST /api/game/login
type LoginView struct {
	Key string `json:"key"`
}
