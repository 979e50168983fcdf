// Package main is the entrypoint for the GodsEye API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godseye3002/godseye/internal/analysis"
	"github.com/godseye3002/godseye/internal/api"
	"github.com/godseye3002/godseye/internal/api/handler"
	mw "github.com/godseye3002/godseye/internal/api/middleware"
	"github.com/godseye3002/godseye/internal/api/response"
	"github.com/godseye3002/godseye/internal/cache"
	"github.com/godseye3002/godseye/internal/config"
	"github.com/godseye3002/godseye/internal/notify"
	"github.com/godseye3002/godseye/internal/orchestrator"
	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/internal/upstream"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "engines", cfg.Analysis.Engines, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create change notifier (Redis pub/sub)
	notifier, err := notify.NewRedisNotifier(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}
	defer notifier.Close()

	// 6. Create store and orchestration core
	pgStore := store.NewPostgresStore(pool)

	retryCfg := upstream.RetryConfig{
		MaxRetries:           cfg.Upstream.MaxRetries,
		BaseDelay:            cfg.Upstream.RetryBaseDelay,
		MaxDelay:             cfg.Upstream.RetryMaxDelay,
		RetryableStatusCodes: upstream.DefaultRetryConfig().RetryableStatusCodes,
	}
	httpClient := upstream.NewClient(cfg.Upstream.Timeout, retryCfg)
	scraper := upstream.NewScraperClient(cfg.Upstream.ScraperURL, httpClient)
	analyzer := upstream.NewAnalyzerClient(cfg.Upstream.AnalyzerBaseURL, httpClient)

	gate := analysis.NewGate(pgStore)
	reconciler := orchestrator.NewReconciler(pgStore)
	poller := orchestrator.NewPoller(analyzer, cfg.Polling.Interval, cfg.Polling.MaxAttempts, cfg.Upstream.AllowDebugShapes)
	svc := orchestrator.NewService(pgStore, redisCache, gate, scraper, analyzer, poller,
		notifier, cfg.Analysis.Modes, cfg.Analysis.Location)
	defer svc.Close()

	broadcaster := orchestrator.NewBroadcaster(redisCache, reconciler, notifier)
	go func() {
		if err := broadcaster.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("broadcaster stopped", "error", err)
		}
	}()

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)
	engines := cfg.Analysis.Engines

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:        healthHandler(pgStore, redisCache),
		StartAnalysisHandler: handler.NewStartAnalysisHandler(svc, engines),
		FreshnessHandler:     handler.NewFreshnessHandler(svc, engines),
		GetJobHandler:        handler.NewGetJobHandler(pgStore),
		GetProgressHandler:   handler.NewGetProgressHandler(reconciler, engines),
		WatchProgressHandler: handler.NewWatchProgressHandler(broadcaster, engines),
		IngestHandler:        handler.NewIngestHandler(pgStore, notifier, engines),
		CreateKeyHandler:     handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:      handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:     handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
