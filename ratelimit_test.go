package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRateLimiterAllowsBurstThenDenies(t *testing.T) {
	rl := newKeyedRateLimiter(RateLimitRule{WindowSeconds: 60, MaxRequests: 3})

	for i := 0; i < 3; i++ {
		allowed, _ := rl.Allow("1.2.3.4")
		assert.True(t, allowed, "request %d within the burst", i+1)
	}
	allowed, retryAfter := rl.Allow("1.2.3.4")
	assert.False(t, allowed)
	assert.GreaterOrEqual(t, retryAfter, 1)
}

func TestKeyedRateLimiterKeysAreIndependent(t *testing.T) {
	rl := newKeyedRateLimiter(RateLimitRule{WindowSeconds: 60, MaxRequests: 1})

	allowed, _ := rl.Allow("1.2.3.4")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("1.2.3.4")
	assert.False(t, allowed)

	allowed, _ = rl.Allow("5.6.7.8")
	assert.True(t, allowed, "a fresh key gets its own bucket")
}

func TestKeyedRateLimiterZeroMaxDisables(t *testing.T) {
	rl := newKeyedRateLimiter(RateLimitRule{WindowSeconds: 1, MaxRequests: 0})
	for i := 0; i < 100; i++ {
		allowed, _ := rl.Allow("1.2.3.4")
		assert.True(t, allowed)
	}
}

func TestRateLimitGroupChecksPerEndpoint(t *testing.T) {
	cfg := RateLimitsConfig{
		Move:  RateLimitRule{WindowSeconds: 60, MaxRequests: 1},
		Login: RateLimitRule{WindowSeconds: 60, MaxRequests: 5},
	}
	g := NewRateLimitGroup(cfg)
	defer g.Close()

	allowed, _ := g.Check("move", "1.2.3.4")
	assert.True(t, allowed)
	allowed, retryAfter := g.Check("move", "1.2.3.4")
	assert.False(t, allowed)
	assert.GreaterOrEqual(t, retryAfter, 1)

	// Exhausting move does not touch login's budget
	allowed, _ = g.Check("login", "1.2.3.4")
	assert.True(t, allowed)

	// Unknown endpoints pass through
	allowed, _ = g.Check("nonexistent", "1.2.3.4")
	assert.True(t, allowed)
}

func TestKeyedRateLimiterPurgeIdle(t *testing.T) {
	rl := newKeyedRateLimiter(RateLimitRule{WindowSeconds: 60, MaxRequests: 1})
	rl.Allow("1.2.3.4")
	assert.Len(t, rl.limiters, 1)

	rl.purgeIdle(time.Now().Add(time.Hour))
	assert.Empty(t, rl.limiters)
}
