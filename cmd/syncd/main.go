package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopperapp/shopper-backend/internal/outbox"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/config"
	"github.com/shopperapp/shopper-backend/pkg/db"
	"github.com/shopperapp/shopper-backend/pkg/instance"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
	"github.com/shopperapp/shopper-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "syncd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "syncd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := dbClient.Migrate(context.Background(), logg); err != nil {
		logg.Error(context.Background(), "failed to migrate schema", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	for name, resource := range map[string]db.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	} {
		if err := resource.Ping(context.Background()); err != nil {
			logg.Error(context.Background(), "readiness check failed: "+name, err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)

	store := remote.NewRedisStore(redisClient, logg, cfg.Presence.LivenessTTL)
	defer store.Close()

	queue := outbox.NewQueue(dbClient.DB(), store, cfg.Sync, syncMetrics, logg)
	reaper := remote.NewPresenceReaper(store, redisClient, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting sync daemon")

	// Replay writes deferred during the previous run before accepting new
	// work. Rows that still fail stay queued for the next start.
	if flushed, err := queue.Flush(ctx); err != nil {
		logg.Warn(ctx, "pending-write flush incomplete: "+err.Error())
	} else if flushed > 0 {
		logg.Info(logg.WithField(ctx, "flushed", flushed), "replayed deferred writes")
	}

	if cfg.App.MetricsPort != "" {
		go serveMetrics(ctx, cfg.App.MetricsPort, registry, logg)
	}

	if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "presence reaper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync daemon shutting down gracefully")
}

func serveMetrics(ctx context.Context, port string, registry *prometheus.Registry, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	logg.Info(logg.WithField(ctx, "addr", server.Addr), "serving metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, fmt.Sprintf("metrics server stopped: %s", server.Addr), err)
	}
}
