package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgelabs-ai/mediaforge-backend/internal/idempotency"
	"github.com/forgelabs-ai/mediaforge-backend/internal/media"
	"github.com/forgelabs-ai/mediaforge-backend/internal/sweeper"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/instance"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/metrics"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/migrate"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/redis"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/storage/s3"
)

const lockKeyFormat = "mf:sweeper:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sweeper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
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

	storeClient, err := s3.NewClient(context.Background(), cfg.S3, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap object storage", err)
		os.Exit(1)
	}

	fetcher := media.NewFetcher(&http.Client{Timeout: 60 * time.Second}, int64(cfg.Media.MaxFetchMB)<<20)
	mediaService, err := media.NewService(media.NewRepository(dbClient.DB()), storeClient, fetcher, cfg.Media, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create media service", err)
		os.Exit(1)
	}

	idemService, err := idempotency.NewService(idempotency.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency service", err)
		os.Exit(1)
	}

	mediaJob, err := sweeper.NewMediaJob(sweeper.MediaJobParams{Media: mediaService})
	if err != nil {
		logg.Error(context.Background(), "failed to create media sweep job", err)
		os.Exit(1)
	}
	idemJob, err := sweeper.NewIdempotencyJob(sweeper.IdempotencyJobParams{
		Registry: idemService,
		TTL:      cfg.Sweeper.IdempotencyTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency sweep job", err)
		os.Exit(1)
	}

	lock, err := sweeper.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Sweeper.Interval+5*time.Minute)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	service, err := sweeper.NewService(sweeper.ServiceParams{
		Logger:   logg,
		Registry: sweeper.NewRegistry(mediaJob, idemJob),
		Lock:     lock,
		Metrics:  metrics.NewSweeperMetrics(registry),
		Interval: cfg.Sweeper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Sweeper.Interval.String(),
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting sweeper")

	metricsServer := &http.Server{
		Addr:    ":" + cfg.Sweeper.MetricsPort,
		Handler: metricsHandler(registry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweeper shutting down gracefully")
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
