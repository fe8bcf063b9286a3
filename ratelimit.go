package main

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitRule is one endpoint's allowance: MaxRequests per WindowSeconds.
// A zero MaxRequests disables limiting for the endpoint.
type RateLimitRule struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
}

// keyedRateLimiter keeps one token bucket per client key (token or IP) and
// evicts buckets that have sat idle long enough to refill completely.
type keyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiterEntry
	limit    rate.Limit
	burst    int
}

type keyedLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedRateLimiter(rule RateLimitRule) *keyedRateLimiter {
	limit := rate.Inf
	burst := 1
	if rule.MaxRequests > 0 {
		window := rule.WindowSeconds
		if window < 1 {
			window = 1
		}
		limit = rate.Limit(float64(rule.MaxRequests) / float64(window))
		burst = rule.MaxRequests
	}
	return &keyedRateLimiter{
		limiters: make(map[string]*keyedLimiterEntry),
		limit:    limit,
		burst:    burst,
	}
}

// Allow reports whether key may proceed now. When denied, retryAfter is the
// whole number of seconds (rounded up, at least 1) until a token frees up.
func (rl *keyedRateLimiter) Allow(key string) (allowed bool, retryAfter int) {
	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &keyedLimiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	res := entry.limiter.Reserve()
	delay := res.Delay()
	if delay == 0 {
		return true, 0
	}
	res.Cancel()
	secs := int(math.Ceil(delay.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return false, secs
}

// purgeIdle drops buckets not seen since cutoff (caller-side helper for the
// group's cleanup loop).
func (rl *keyedRateLimiter) purgeIdle(cutoff time.Time) {
	rl.mu.Lock()
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
	rl.mu.Unlock()
}

// RateLimitGroup holds one limiter per endpoint and a shared cleanup loop.
type RateLimitGroup struct {
	byEndpoint map[string]*keyedRateLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimitGroup wires a limiter per configured endpoint and starts the
// idle-entry cleanup goroutine.
func NewRateLimitGroup(cfg RateLimitsConfig) *RateLimitGroup {
	g := &RateLimitGroup{
		byEndpoint: map[string]*keyedRateLimiter{
			"status":      newKeyedRateLimiter(cfg.Status),
			"login":       newKeyedRateLimiter(cfg.Login),
			"join":        newKeyedRateLimiter(cfg.Join),
			"move":        newKeyedRateLimiter(cfg.Move),
			"map":         newKeyedRateLimiter(cfg.Map),
			"map_delta":   newKeyedRateLimiter(cfg.MapDelta),
			"leaderboard": newKeyedRateLimiter(cfg.Leaderboard),
		},
		stop: make(chan struct{}),
	}
	go g.cleanupLoop()
	return g
}

// Check consults the endpoint's limiter for key. Unknown endpoints pass.
func (g *RateLimitGroup) Check(endpoint, key string) (allowed bool, retryAfter int) {
	rl, ok := g.byEndpoint[endpoint]
	if !ok {
		return true, 0
	}
	return rl.Allow(key)
}

func (g *RateLimitGroup) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-5 * time.Minute)
			for _, rl := range g.byEndpoint {
				rl.purgeIdle(cutoff)
			}
		}
	}
}

// Close stops the cleanup goroutine.
func (g *RateLimitGroup) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}
