package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

var hexColorPattern = regexp.MustCompile(`^#([0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})$`)

// PlayerManager is the identity and session directory. Account keys are
// long-lived and backed by the store; session IDs and tokens live only in
// memory and die with the process. One RWMutex covers all four maps:
// login/join take the write lock, validation reads take shared access.
type PlayerManager struct {
	mu             sync.RWMutex
	uidToKey       map[string]string
	keyToUID       map[string]string
	tokenToSession map[string]string
	sessions       map[string]*Player // session ID -> player

	store          *Store
	oracle         PasteOracle
	universalPaste string
	logger         *zap.Logger
}

// NewPlayerManager creates the directory over the given store and oracle
func NewPlayerManager(store *Store, oracle PasteOracle, universalPaste string, logger *zap.Logger) *PlayerManager {
	return &PlayerManager{
		uidToKey:       make(map[string]string),
		keyToUID:       make(map[string]string),
		tokenToSession: make(map[string]string),
		sessions:       make(map[string]*Player),
		store:          store,
		oracle:         oracle,
		universalPaste: universalPaste,
		logger:         logger,
	}
}

// Login validates the account's paste proof and returns its key. Existing
// accounts presenting their stored proof get their current key back; a new
// proof rotates the key and invalidates the old one. New accounts are
// registered with a fresh key. The configured universal paste bypasses the
// oracle for testing.
func (pm *PlayerManager) Login(ctx context.Context, uid, paste string) (string, error) {
	if pm.universalPaste != "" && paste == pm.universalPaste {
		pm.logger.Info("universal paste accepted", zap.String("uid", uid))
	} else if !pm.oracle.Verify(ctx, uid, paste) {
		pm.logger.Warn("login validation failed", zap.String("uid", uid))
		return "", errUnauthorized("credential validation failed")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	nowMs := nowUnixMilli()
	existingKey, existingPaste, found, err := pm.store.AccountCreds(uid)
	if err != nil {
		return "", errUnavailable("account store unreachable")
	}

	if found {
		if existingPaste == paste {
			if err := pm.store.TouchLogin(uid, nowMs); err != nil {
				return "", errUnavailable("account store unreachable")
			}
			pm.uidToKey[uid] = existingKey
			pm.keyToUID[existingKey] = uid
			pm.logger.Info("existing account login", zap.String("uid", uid))
			return existingKey, nil
		}
		// New proof: rotate the key, evict the old one
		newKey := randomHex256()
		if err := pm.store.UpdateAccountKey(uid, paste, newKey, nowMs); err != nil {
			return "", errUnavailable("account store unreachable")
		}
		delete(pm.keyToUID, existingKey)
		pm.uidToKey[uid] = newKey
		pm.keyToUID[newKey] = uid
		pm.logger.Info("account key rotated", zap.String("uid", uid))
		return newKey, nil
	}

	key := randomHex256()
	if err := pm.store.InsertAccount(uid, paste, key, nowMs); err != nil {
		return "", errUnavailable("account store unreachable")
	}
	pm.uidToKey[uid] = key
	pm.keyToUID[key] = uid
	pm.logger.Info("new account registered", zap.String("uid", uid))
	return key, nil
}

// Join creates a fresh session for the account behind key. The session gets
// a new ID and token; the caller spawns the snake afterwards under the world
// lock. An account with a live in-game session cannot join twice.
func (pm *PlayerManager) Join(key, name, color string) (*Player, error) {
	uid, ok := pm.ValidateKey(key)
	if !ok {
		return nil, errForbidden("invalid key")
	}
	if !isValidPlayerName(name) {
		return nil, errBadRequest("invalid player name")
	}
	if color == "" {
		color = randomColor()
	} else if !hexColorPattern.MatchString(color) {
		return nil, errBadRequest("invalid color format")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.sessions {
		if p.UID == uid && p.InGame() {
			return nil, errConflict("player already in game")
		}
	}

	sessionID := pm.newSessionID(uid)
	token := randomHex256()
	p := NewPlayer(uid, sessionID, name, color, key, token)
	pm.sessions[sessionID] = p
	pm.tokenToSession[token] = sessionID

	pm.logger.Info("player joined",
		zap.String("uid", uid),
		zap.String("name", name),
		zap.String("session", sessionID))
	return p, nil
}

// ValidateKey resolves an account key to its UID: memory first, store as
// fallback for accounts that logged in before a restart
func (pm *PlayerManager) ValidateKey(key string) (string, bool) {
	pm.mu.RLock()
	uid, ok := pm.keyToUID[key]
	pm.mu.RUnlock()
	if ok {
		return uid, true
	}

	uid, found, err := pm.store.UIDForKey(key)
	if err != nil || !found {
		return "", false
	}
	pm.mu.Lock()
	pm.uidToKey[uid] = key
	pm.keyToUID[key] = uid
	pm.mu.Unlock()
	return uid, true
}

// ValidateToken resolves a session token to its session ID in O(1)
func (pm *PlayerManager) ValidateToken(token string) (string, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	sessionID, ok := pm.tokenToSession[token]
	return sessionID, ok
}

// PlayerBySession returns the session with the given ID
func (pm *PlayerManager) PlayerBySession(sessionID string) (*Player, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	p, ok := pm.sessions[sessionID]
	return p, ok
}

// PlayerByToken returns the session authenticated by token
func (pm *PlayerManager) PlayerByToken(token string) (*Player, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	sessionID, ok := pm.tokenToSession[token]
	if !ok {
		return nil, false
	}
	p, ok := pm.sessions[sessionID]
	return p, ok
}

// RemoveSession drops a session and its token mapping. Account keys survive.
func (pm *PlayerManager) RemoveSession(sessionID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	p, ok := pm.sessions[sessionID]
	if !ok {
		return
	}
	delete(pm.tokenToSession, p.Token)
	delete(pm.sessions, sessionID)
	pm.logger.Info("session removed", zap.String("session", sessionID))
}

// LiveSessions returns all sessions still flagged in-game
func (pm *PlayerManager) LiveSessions() []*Player {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]*Player, 0, len(pm.sessions))
	for _, p := range pm.sessions {
		if p.InGame() {
			out = append(out, p)
		}
	}
	return out
}

// SweepDeadSessions evicts sessions that left the game more than grace ago,
// forgetting their tokens. A freshly dead session keeps resolving through the
// grace window so its last moves still get a not-found answer instead of a
// forbidden one. Returns the number of sessions evicted.
func (pm *PlayerManager) SweepDeadSessions(grace time.Duration) int {
	cutoff := time.Now().Add(-grace).UnixMilli()
	pm.mu.Lock()
	defer pm.mu.Unlock()
	n := 0
	for id, p := range pm.sessions {
		if p.InGame() {
			continue
		}
		if ended := p.EndedAtMs(); ended > 0 && ended < cutoff {
			delete(pm.tokenToSession, p.Token)
			delete(pm.sessions, id)
			n++
		}
	}
	if n > 0 {
		pm.logger.Info("dead sessions swept", zap.Int("count", n))
	}
	return n
}

// RemoveAllSessions clears every session, keeping account keys so players
// can rejoin without logging in again
func (pm *PlayerManager) RemoveAllSessions() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	n := len(pm.sessions)
	pm.sessions = make(map[string]*Player)
	pm.tokenToSession = make(map[string]string)
	pm.logger.Info("all sessions removed", zap.Int("count", n))
}

// newSessionID mints p_{uid}_{6 random digits}, retrying on the rare clash.
// Caller must hold pm.mu.
func (pm *PlayerManager) newSessionID(uid string) string {
	for {
		id := fmt.Sprintf("p_%s_%06d", uid, randomInt(1000000))
		if _, taken := pm.sessions[id]; !taken {
			return id
		}
	}
}

// randomHex256 returns 256 bits of CSPRNG entropy as 64 hex characters
func randomHex256() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // the OS entropy source failing is not recoverable
	}
	return hex.EncodeToString(buf)
}

func randomInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		panic(err)
	}
	return v.Int64()
}

// randomColor picks a uniform #RRGGBB color
func randomColor() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return fmt.Sprintf("#%02x%02x%02x", buf[0], buf[1], buf[2])
}

// isValidPlayerName accepts 1..20 visible characters with no control runes
func isValidPlayerName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > 20 {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
