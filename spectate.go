package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// spectatorConn wraps one spectator websocket. Writes are serialized by mu;
// the read side only drains control frames.
type spectatorConn struct {
	id     string
	ws     *websocket.Conn
	mu     sync.Mutex // protects ws writes and closed
	closed bool
}

func newSpectatorConn(ws *websocket.Conn) *spectatorConn {
	return &spectatorConn{id: uuid.New().String(), ws: ws}
}

// send serializes msg to JSON and writes it with a short deadline. A write
// error marks the connection dead so the hub can evict it.
func (c *spectatorConn) send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *spectatorConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.ws.Close()
}

// SpectatorHub fans the per-round delta out to spectator websockets.
// On connect each spectator first receives the current full view so it can
// apply subsequent deltas to a known base.
type SpectatorHub struct {
	world    *World
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	conns    map[string]*spectatorConn
	lastJoin map[string]time.Time // per-IP connect cooldown

	maxConns int
	cooldown time.Duration
}

func NewSpectatorHub(world *World, maxConns int, cooldown time.Duration, logger *zap.Logger) *SpectatorHub {
	return &SpectatorHub{
		world:  world,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:    make(map[string]*spectatorConn),
		lastJoin: make(map[string]time.Time),
		maxConns: maxConns,
		cooldown: cooldown,
	}
}

// HandleUpgrade serves GET /ws/spectate.
func (h *SpectatorHub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.admit(ip) {
		http.Error(w, "spectator slots busy", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("spectator upgrade failed", zap.Error(err))
		return
	}
	conn := newSpectatorConn(ws)

	h.mu.Lock()
	h.conns[conn.id] = conn
	count := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("spectator connected",
		zap.String("conn", conn.id), zap.String("ip", ip), zap.Int("spectators", count))

	// Base state first, deltas follow each round
	h.world.mu.RLock()
	full := h.world.FullView()
	h.world.mu.RUnlock()
	if err := conn.send(full); err != nil {
		h.drop(conn)
		return
	}

	go h.readLoop(conn)
}

// admit checks the connection cap and the per-IP cooldown, recording the
// attempt when admitted.
func (h *SpectatorHub) admit(ip string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxConns > 0 && len(h.conns) >= h.maxConns {
		return false
	}
	if h.cooldown > 0 {
		if last, ok := h.lastJoin[ip]; ok && time.Since(last) < h.cooldown {
			return false
		}
	}
	h.lastJoin[ip] = time.Now()
	return true
}

// readLoop drains the connection until it closes. Spectators send nothing
// meaningful; reading keeps control frames flowing and detects disconnects.
func (h *SpectatorHub) readLoop(conn *spectatorConn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("spectator read error",
					zap.String("conn", conn.id), zap.Error(err))
			}
			return
		}
	}
}

// BroadcastDelta pushes the round's delta to every spectator. Slow or broken
// consumers are dropped rather than stalling the loop.
func (h *SpectatorHub) BroadcastDelta(delta DeltaView) {
	h.mu.RLock()
	list := make([]*spectatorConn, 0, len(h.conns))
	for _, c := range h.conns {
		list = append(list, c)
	}
	h.mu.RUnlock()

	for _, c := range list {
		if err := c.send(delta); err != nil {
			h.logger.Debug("dropping slow spectator",
				zap.String("conn", c.id), zap.Error(err))
			h.drop(c)
		}
	}
}

func (h *SpectatorHub) drop(conn *spectatorConn) {
	conn.close()
	h.mu.Lock()
	delete(h.conns, conn.id)
	h.mu.Unlock()
}

// Count returns the number of connected spectators.
func (h *SpectatorHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every spectator.
func (h *SpectatorHub) Close() {
	h.mu.Lock()
	list := make([]*spectatorConn, 0, len(h.conns))
	for _, c := range h.conns {
		list = append(list, c)
	}
	h.conns = make(map[string]*spectatorConn)
	h.mu.Unlock()
	for _, c := range list {
		c.close()
	}
}
