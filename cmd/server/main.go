package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commercekit/hookrelay/internal/api"
	"github.com/commercekit/hookrelay/internal/breaker"
	"github.com/commercekit/hookrelay/internal/config"
	"github.com/commercekit/hookrelay/internal/dispatch"
	"github.com/commercekit/hookrelay/internal/ingress"
	"github.com/commercekit/hookrelay/internal/registry"
	"github.com/commercekit/hookrelay/internal/retry"
	"github.com/commercekit/hookrelay/internal/store"
	"github.com/commercekit/hookrelay/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisClient, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Wire the delivery core
	reg := registry.New(pgStore, 4096, cfg.SubscriptionCacheTTL, logger)
	tracker := breaker.NewTracker(redisClient, reg, cfg.FailureThreshold, cfg.FailureWindow, logger)
	deliverer := dispatch.NewDeliverer(cfg.HTTPTimeout, logger)
	limiter := dispatch.NewRateLimiter(redisClient, time.Second, logger)

	scheduler := retry.NewScheduler(
		redisClient, reg, tracker, deliverer, pgStore, limiter,
		cfg.RetryBaseDelay, cfg.MaxRetryAttempts, cfg.RetryDrainInterval, logger,
	)

	engine := dispatch.NewEngine(reg, tracker, scheduler, limiter, deliverer, cfg.FanoutConcurrency, logger)

	ingressSvc := ingress.NewService(engine, cfg.NumWorkers, cfg.HTTPTimeout+5*time.Second, logger)
	ingressSvc.Start()

	// Retry drain loop
	drainCtx, stopDrain := context.WithCancel(ctx)
	go scheduler.Run(drainCtx)

	// Setup router
	router := api.NewRouter(pgStore, reg, tracker, ingressSvc, scheduler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	stopDrain()
	ingressSvc.Stop()

	logger.Info("server stopped")
}
