package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
server:
  port: 9090
game:
  map_width: 50
  food_density: 0.02
rate_limits:
  move:
    window_seconds: 1
    max_requests: 5
auth:
  universal_paste: "secret"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Game.MapWidth)
	assert.Equal(t, 0.02, cfg.Game.FoodDensity)
	assert.Equal(t, 5, cfg.RateLimits.Move.MaxRequests)
	assert.Equal(t, "secret", cfg.Auth.UniversalPaste)

	// Untouched knobs keep their defaults
	assert.Equal(t, 100, cfg.Game.MapHeight)
	assert.Equal(t, 500, cfg.Game.RoundTimeMs)
	assert.Equal(t, "snake_arena.db", cfg.Database.Path)
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero threads", func(c *Config) { c.Server.Threads = 0 }},
		{"negative session grace", func(c *Config) { c.Server.DeadSessionGraceSecs = -1 }},
		{"tiny map", func(c *Config) { c.Game.MapWidth = 2 }},
		{"round too short", func(c *Config) { c.Game.RoundTimeMs = 1 }},
		{"zero initial length", func(c *Config) { c.Game.InitialLength = 0 }},
		{"density above one", func(c *Config) { c.Game.FoodDensity = 1.5 }},
		{"negative spawn radius", func(c *Config) { c.Game.SafeSpawnRadius = -1 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"bad sample rate", func(c *Config) { c.Performance.SampleRate = 2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
