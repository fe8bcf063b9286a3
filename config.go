package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration, loaded from a single YAML file
// layered over the embedded defaults.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Game        GameConfig        `yaml:"game"`
	Database    DatabaseConfig    `yaml:"database"`
	RateLimits  RateLimitsConfig  `yaml:"rate_limits"`
	Auth        AuthConfig        `yaml:"auth"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Performance PerformanceConfig `yaml:"performance_monitor"`
}

type ServerConfig struct {
	Port                  int `yaml:"port"`
	Threads               int `yaml:"threads"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	MaxSpectators         int `yaml:"max_spectators"`
	SpectatorCooldownSecs int `yaml:"spectator_cooldown_seconds"`
	DeadSessionGraceSecs  int `yaml:"dead_session_grace_seconds"` // 0 disables the sweep
}

type GameConfig struct {
	MapWidth            int     `yaml:"map_width"`
	MapHeight           int     `yaml:"map_height"`
	RoundTimeMs         int     `yaml:"round_time_ms"`
	InitialLength       int     `yaml:"initial_length"`
	InvincibilityRounds int     `yaml:"invincibility_rounds"`
	FoodDensity         float64 `yaml:"food_density"`
	SafeSpawnRadius     int     `yaml:"safe_spawn_radius"`
	SnapshotEveryRounds int     `yaml:"snapshot_every_rounds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RateLimitsConfig struct {
	Status      RateLimitRule `yaml:"status"`
	Login       RateLimitRule `yaml:"login"`
	Join        RateLimitRule `yaml:"join"`
	Move        RateLimitRule `yaml:"move"`
	Map         RateLimitRule `yaml:"map"`
	MapDelta    RateLimitRule `yaml:"map_delta"`
	Leaderboard RateLimitRule `yaml:"leaderboard"`
}

type AuthConfig struct {
	UniversalPaste       string `yaml:"universal_paste"`
	ValidationText       string `yaml:"validation_text"`
	OracleTimeoutSeconds int    `yaml:"oracle_timeout_seconds"`
}

type LeaderboardConfig struct {
	Season          string `yaml:"season"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type PerformanceConfig struct {
	Enabled       bool    `yaml:"enabled"`
	SampleRate    float64 `yaml:"sample_rate"`
	WindowSeconds int     `yaml:"window_seconds"`
}

// DefaultConfig returns the built-in configuration the YAML file overlays.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:                  8080,
			Threads:               64,
			RequestTimeoutSeconds: 10,
			MaxSpectators:         100,
			SpectatorCooldownSecs: 2,
			DeadSessionGraceSecs:  300,
		},
		Game: GameConfig{
			MapWidth:            100,
			MapHeight:           100,
			RoundTimeMs:         500,
			InitialLength:       4,
			InvincibilityRounds: 10,
			FoodDensity:         0.01,
			SafeSpawnRadius:     3,
			SnapshotEveryRounds: 100,
		},
		Database: DatabaseConfig{Path: "snake_arena.db"},
		RateLimits: RateLimitsConfig{
			Status:      RateLimitRule{WindowSeconds: 60, MaxRequests: 120},
			Login:       RateLimitRule{WindowSeconds: 60, MaxRequests: 10},
			Join:        RateLimitRule{WindowSeconds: 60, MaxRequests: 20},
			Move:        RateLimitRule{WindowSeconds: 60, MaxRequests: 600},
			Map:         RateLimitRule{WindowSeconds: 60, MaxRequests: 240},
			MapDelta:    RateLimitRule{WindowSeconds: 60, MaxRequests: 600},
			Leaderboard: RateLimitRule{WindowSeconds: 60, MaxRequests: 60},
		},
		Auth: AuthConfig{
			ValidationText:       "snake-arena",
			OracleTimeoutSeconds: 10,
		},
		Leaderboard: LeaderboardConfig{
			Season:          "all_time",
			CacheTTLSeconds: 5,
		},
		Performance: PerformanceConfig{
			Enabled:       true,
			SampleRate:    0.1,
			WindowSeconds: 300,
		},
	}
}

// LoadConfig overlays the YAML file at path onto the defaults. An empty path
// returns the defaults. The result is validated before use.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the simulation cannot run with.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Threads < 1 {
		return fmt.Errorf("server.threads must be at least 1")
	}
	if c.Server.DeadSessionGraceSecs < 0 {
		return fmt.Errorf("server.dead_session_grace_seconds must not be negative")
	}
	if c.Game.MapWidth < 4 || c.Game.MapHeight < 4 {
		return fmt.Errorf("map %dx%d too small", c.Game.MapWidth, c.Game.MapHeight)
	}
	if c.Game.RoundTimeMs < 10 {
		return fmt.Errorf("game.round_time_ms %d too short", c.Game.RoundTimeMs)
	}
	if c.Game.InitialLength < 1 {
		return fmt.Errorf("game.initial_length must be at least 1")
	}
	if c.Game.FoodDensity < 0 || c.Game.FoodDensity > 1 {
		return fmt.Errorf("game.food_density %v out of [0,1]", c.Game.FoodDensity)
	}
	if c.Game.SafeSpawnRadius < 0 {
		return fmt.Errorf("game.safe_spawn_radius must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Performance.SampleRate < 0 || c.Performance.SampleRate > 1 {
		return fmt.Errorf("performance_monitor.sample_rate %v out of [0,1]", c.Performance.SampleRate)
	}
	return nil
}
