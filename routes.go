package main

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RouteHandler is the HTTP adapter over the game core. It owns no state of
// its own: every handler validates input, consults the identity directory
// and the world, and serializes the result into the response envelope.
type RouteHandler struct {
	world   *World
	gameMap *GameMap
	loop    *GameLoop
	players *PlayerManager
	board   *LeaderboardWriter
	limits  *RateLimitGroup
	metrics *Metrics
	hub     *SpectatorHub
	logger  *zap.Logger
	gameCfg GameConfig
}

func NewRouteHandler(world *World, gameMap *GameMap, loop *GameLoop,
	players *PlayerManager, board *LeaderboardWriter, limits *RateLimitGroup,
	metrics *Metrics, hub *SpectatorHub, gameCfg GameConfig, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		world:   world,
		gameMap: gameMap,
		loop:    loop,
		players: players,
		board:   board,
		limits:  limits,
		metrics: metrics,
		hub:     hub,
		logger:  logger,
		gameCfg: gameCfg,
	}
}

// Mux builds the route table. Every API handler goes through the CORS,
// method, rate-limit and metrics wrappers.
func (h *RouteHandler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", h.wrap("status", http.MethodGet, h.handleStatus))
	mux.HandleFunc("/api/game/login", h.wrap("login", http.MethodPost, h.handleLogin))
	mux.HandleFunc("/api/game/join", h.wrap("join", http.MethodPost, h.handleJoin))
	mux.HandleFunc("/api/game/map", h.wrap("map", http.MethodGet, h.handleMap))
	mux.HandleFunc("/api/game/map/delta", h.wrap("map_delta", http.MethodGet, h.handleMapDelta))
	mux.HandleFunc("/api/game/move", h.wrap("move", http.MethodPost, h.handleMove))
	mux.HandleFunc("/api/leaderboard", h.wrap("leaderboard", http.MethodGet, h.handleLeaderboard))
	if h.metrics != nil {
		mux.Handle("/api/metrics", h.metrics.Handler())
	}
	if h.hub != nil {
		mux.HandleFunc("/ws/spectate", h.hub.HandleUpgrade)
	}
	return mux
}

// apiHandler is a handler that returns data for the success envelope or an
// error mapped onto it
type apiHandler func(w http.ResponseWriter, r *http.Request) (any, error)

// wrap applies CORS headers, the OPTIONS preflight, method enforcement, the
// endpoint's rate limiter and request metrics around fn.
func (h *RouteHandler) wrap(endpoint, method string, fn apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusOK

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != method {
			status = http.StatusMethodNotAllowed
			writeEnvelope(w, status, Envelope{Code: status, Msg: "method not allowed"})
			h.observe(endpoint, status, start)
			return
		}

		if allowed, retryAfter := h.limits.Check(endpoint, clientIP(r)); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			err := errTooManyRequests("rate limit exceeded", retryAfter)
			writeError(w, err)
			h.observe(endpoint, http.StatusTooManyRequests, start)
			return
		}

		data, err := fn(w, r)
		if err != nil {
			writeError(w, err)
			if apiErr, ok := err.(*apiError); ok {
				status = apiErr.code
			} else {
				status = http.StatusInternalServerError
			}
		} else {
			writeSuccess(w, data)
		}
		h.observe(endpoint, status, start)
	}
}

func (h *RouteHandler) observe(endpoint string, status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveRequest(endpoint, status, time.Since(start))
	}
}

// handleStatus serves GET /api/status
func (h *RouteHandler) handleStatus(w http.ResponseWriter, r *http.Request) (any, error) {
	h.world.mu.RLock()
	round := h.world.Round()
	playerCount := h.world.PlayerCount()
	h.world.mu.RUnlock()

	return StatusView{
		MapSize:     MapSize{Width: h.gameMap.Width(), Height: h.gameMap.Height()},
		RoundTime:   h.gameCfg.RoundTimeMs,
		Round:       round,
		PlayerCount: playerCount,
	}, nil
}

type loginRequest struct {
	UID   string `json:"uid"`
	Paste string `json:"paste"`
}

// handleLogin serves POST /api/game/login
func (h *RouteHandler) handleLogin(w http.ResponseWriter, r *http.Request) (any, error) {
	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, err
	}
	if req.UID == "" || req.Paste == "" {
		return nil, errBadRequest("uid and paste are required")
	}

	key, err := h.players.Login(r.Context(), req.UID, req.Paste)
	if err != nil {
		return nil, err
	}
	return LoginView{Key: key}, nil
}

type joinRequest struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// handleJoin serves POST /api/game/join. The session is minted first; the
// snake spawns under the world lock so the placement cell cannot race a tick.
func (h *RouteHandler) handleJoin(w http.ResponseWriter, r *http.Request) (any, error) {
	var req joinRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, errBadRequest("key is required")
	}

	p, err := h.players.Join(req.Key, req.Name, req.Color)
	if err != nil {
		return nil, err
	}

	h.world.mu.Lock()
	spawn := h.gameMap.RandomSafeSpawn(h.world.Occupancy(), h.gameCfg.SafeSpawnRadius)
	if spawn.IsNull() {
		h.world.mu.Unlock()
		h.players.RemoveSession(p.ID)
		return nil, errUnavailable("no safe spawn position available")
	}
	snake, err := NewSnake(spawn, h.gameCfg.InitialLength)
	if err != nil {
		h.world.mu.Unlock()
		h.players.RemoveSession(p.ID)
		return nil, errInternal("")
	}
	snake.SetInvincibleRounds(h.gameCfg.InvincibilityRounds)
	p.Snake = snake
	h.world.AddPlayer(p)
	mapState := h.world.FullView()
	h.world.mu.Unlock()

	h.logger.Info("snake spawned",
		zap.String("session", p.ID),
		zap.Int("x", spawn.X), zap.Int("y", spawn.Y),
		zap.Int("invincible_rounds", h.gameCfg.InvincibilityRounds))

	return JoinView{Token: p.Token, ID: p.ID, MapState: mapState}, nil
}

// handleMap serves GET /api/game/map
func (h *RouteHandler) handleMap(w http.ResponseWriter, r *http.Request) (any, error) {
	h.world.mu.RLock()
	view := h.world.FullView()
	h.world.mu.RUnlock()
	return map[string]FullView{"map_state": view}, nil
}

// handleMapDelta serves GET /api/game/map/delta
func (h *RouteHandler) handleMapDelta(w http.ResponseWriter, r *http.Request) (any, error) {
	h.world.mu.RLock()
	view := h.world.DeltaStateView()
	h.world.mu.RUnlock()
	return map[string]DeltaView{"delta_state": view}, nil
}

type moveRequest struct {
	Token     string `json:"token"`
	Direction string `json:"direction"`
}

// handleMove serves POST /api/game/move. The move is buffered for the next
// round; the response does not wait for the tick. A dead session's token
// still resolves but its moves are not accepted.
func (h *RouteHandler) handleMove(w http.ResponseWriter, r *http.Request) (any, error) {
	var req moveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, errForbidden("token is required")
	}
	d, ok := ParseDirection(req.Direction)
	if !ok || d == DirNone {
		return nil, errBadRequest("invalid direction")
	}

	p, ok := h.players.PlayerByToken(req.Token)
	if !ok {
		return nil, errForbidden("invalid token")
	}
	if !p.InGame() {
		return nil, errNotFound("player not in game")
	}

	if err := h.loop.SubmitIntent(p.ID, d); err != nil {
		return nil, errUnavailable("server shutting down")
	}
	return map[string]string{"id": p.ID}, nil
}

// handleLeaderboard serves GET /api/leaderboard
func (h *RouteHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) (any, error) {
	q := r.URL.Query()
	sort := q.Get("type")
	if sort == "" {
		sort = SortByKills
	}
	limit := parseIntDefault(q.Get("limit"), 10)
	offset := parseIntDefault(q.Get("offset"), 0)
	if offset < 0 {
		return nil, errBadRequest("offset must not be negative")
	}

	rows, err := h.board.Top(sort, limit, offset)
	if err != nil {
		return nil, err
	}
	return LeaderboardView{
		Entries:         rows,
		Season:          h.board.Season(),
		CacheTTLSeconds: h.board.CacheTTLSeconds(),
	}, nil
}

// decodeJSONBody parses the request body into dst, rejecting oversized or
// malformed payloads as bad_request
func decodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err := dec.Decode(dst); err != nil {
		return errBadRequest("malformed request body")
	}
	return nil
}

// clientIP extracts the caller's IP, honoring X-Forwarded-For from a proxy.
// Rate limiting keys on it; tokens live in POST bodies and cannot be read
// before the handler consumes them.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
