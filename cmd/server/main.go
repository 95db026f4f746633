// Command server runs the platform core as an HTTP service: the cached API
// surface, the invalidation bus behind it, and the query performance monitor
// around the database.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/mlg-clan/platform-core/internal/config"
	"github.com/mlg-clan/platform-core/pkg/cache"
	"github.com/mlg-clan/platform-core/pkg/httpcache"
	"github.com/mlg-clan/platform-core/pkg/invalidation"
	"github.com/mlg-clan/platform-core/pkg/observability"
	"github.com/mlg-clan/platform-core/pkg/queryperf"
	"github.com/mlg-clan/platform-core/pkg/store"

	// PostgreSQL driver
	_ "github.com/lib/pq"
)

func main() {
	// A .env file is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	provider, err := observability.NewProvider(cfg.Observability)
	if err != nil {
		log.Fatalf("failed to initialize observability: %v", err)
	}
	defer func() { _ = provider.Shutdown() }()
	logger := provider.Logger.WithPrefix("server")
	metrics := provider.Metrics

	// Shared store: Redis when reachable, in-process memory otherwise. The
	// platform stays up either way; only cross-instance sharing is lost.
	var backing store.Store
	redisStore, err := store.NewRedisStore(cfg.Redis, logger)
	if err != nil {
		logger.Warn("shared store unreachable, falling back to in-process store", map[string]interface{}{
			"address": cfg.Redis.Address,
			"error":   err.Error(),
		})
		backing = store.NewMemoryStore()
	} else {
		backing = store.NewResilientStore(redisStore, cfg.Resilience, logger, metrics)
	}

	tiered := store.NewTieredStore(backing, cfg.Tiered, logger, metrics)
	defer func() { _ = tiered.Close() }()

	if cfg.Cache.EnvPrefix == "" {
		cfg.Cache.EnvPrefix = cfg.Environment
	}
	manager := cache.NewManager(tiered, cfg.Cache, logger, metrics)

	bus := invalidation.NewBus(manager, cfg.Invalidation, logger, metrics)
	defer func() { _ = bus.Close() }()

	responseCache := httpcache.New(manager, cfg.ResponseCache, logger, metrics)

	monitor := queryperf.NewMonitor(cfg.QueryPerf, logger, metrics)
	defer func() { _ = monitor.Close() }()

	// The database is optional in development; handlers degrade to their
	// built-in sample data without it
	var db *queryperf.InstrumentedDB
	if cfg.Database.Host != "" || cfg.Database.DSN != "" {
		raw, err := sqlx.Open(cfg.Database.Driver, cfg.Database.BuildDSN())
		if err == nil {
			raw.SetMaxOpenConns(cfg.Database.MaxOpenConns)
			raw.SetMaxIdleConns(cfg.Database.MaxIdleConns)
			raw.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
			err = raw.Ping()
		}
		if err != nil {
			logger.Warn("database unavailable, serving sample data", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			db = queryperf.NewInstrumentedDB(raw, monitor)
			defer func() { _ = db.Close() }()
		}
	}

	srv := newServer(cfg, manager, responseCache, bus, monitor, db, logger, metrics)

	warmer := httpcache.NewWarmer(srv.router, cfg.Warmer, logger)
	warmer.Start()
	defer warmer.Stop()
	warmStartupRoutes(warmer)

	refresher := httpcache.NewScheduledRefresher(warmer, startupWarmupRequests(), cfg.Warmer.RefreshInterval, logger)
	refresher.Start()
	defer refresher.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", map[string]interface{}{
			"address":     cfg.Server.ListenAddress,
			"environment": cfg.Environment,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

// startupWarmupRequests lists the hottest read endpoints, warmed at boot and
// re-warmed on the configured refresh interval
func startupWarmupRequests() []httpcache.WarmupRequest {
	return []httpcache.WarmupRequest{
		{Path: "/api/leaderboard/users", Priority: 8},
		{Path: "/api/leaderboard/clans", Priority: 8},
		{Path: "/api/content/trending", Priority: 3},
	}
}

// warmStartupRoutes queues the startup list so the first players after a
// deploy hit a warm cache
func warmStartupRoutes(warmer *httpcache.Warmer) {
	for _, req := range startupWarmupRequests() {
		warmer.Enqueue(req)
	}
}

func init() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
