package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// concurrencyLimit caps in-flight requests at n, queueing the rest
func concurrencyLimit(n int, next http.Handler) http.Handler {
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sem <- struct{}{}
		defer func() { <-sem }()
		next.ServeHTTP(w, r)
	})
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	store, err := OpenStore(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	oracle := NewLuoguOracle(cfg.Auth.ValidationText,
		time.Duration(cfg.Auth.OracleTimeoutSeconds)*time.Second, logger)
	players := NewPlayerManager(store, oracle, cfg.Auth.UniversalPaste, logger)

	world := NewWorld()
	gameMap := NewGameMap(cfg.Game.MapWidth, cfg.Game.MapHeight, time.Now().UnixNano(), logger)
	metrics := NewMetrics(cfg.Performance)
	board := NewLeaderboardWriter(store, cfg.Leaderboard.Season,
		time.Duration(cfg.Leaderboard.CacheTTLSeconds)*time.Second, logger)
	snapshots := NewSnapshotWriter(store, logger)
	hub := NewSpectatorHub(world, cfg.Server.MaxSpectators,
		time.Duration(cfg.Server.SpectatorCooldownSecs)*time.Second, logger)
	loop := NewGameLoop(world, gameMap, board, snapshots, hub, metrics, cfg.Game, logger)

	// Seed the map with food before the first round
	world.mu.Lock()
	for _, pos := range gameMap.GenerateByDensity(cfg.Game.FoodDensity, world.Occupancy(), world.FoodSet()) {
		world.AddFood(pos)
	}
	world.mu.Unlock()

	limits := NewRateLimitGroup(cfg.RateLimits)
	defer limits.Close()

	// Dead sessions stay resolvable for the grace window, then get swept so
	// the directory does not grow for the lifetime of the process
	sweepStop := make(chan struct{})
	defer close(sweepStop)
	if cfg.Server.DeadSessionGraceSecs > 0 {
		grace := time.Duration(cfg.Server.DeadSessionGraceSecs) * time.Second
		go func() {
			ticker := time.NewTicker(grace)
			defer ticker.Stop()
			for {
				select {
				case <-sweepStop:
					return
				case <-ticker.C:
					players.SweepDeadSessions(grace)
				}
			}
		}()
	}

	routes := NewRouteHandler(world, gameMap, loop, players, board, limits,
		metrics, hub, cfg.Game, logger)

	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      concurrencyLimit(cfg.Server.Threads, routes.Mux()),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  2 * timeout,
	}

	go loop.Run()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.Int("map_width", cfg.Game.MapWidth),
			zap.Int("map_height", cfg.Game.MapHeight),
			zap.Int("round_time_ms", cfg.Game.RoundTimeMs))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	// The in-flight round completes before the listener closes, so the last
	// published state is a fully resolved round
	loop.Stop()
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	players.RemoveAllSessions()
	logger.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
