package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forgelabs-ai/mediaforge-backend/api/routes"
	"github.com/forgelabs-ai/mediaforge-backend/internal/auth"
	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/internal/generation"
	"github.com/forgelabs-ai/mediaforge-backend/internal/idempotency"
	"github.com/forgelabs-ai/mediaforge-backend/internal/media"
	"github.com/forgelabs-ai/mediaforge-backend/internal/payments"
	"github.com/forgelabs-ai/mediaforge-backend/internal/providers"
	"github.com/forgelabs-ai/mediaforge-backend/internal/users"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/metrics"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/migrate"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/redis"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/storage/s3"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	genMetrics := metrics.NewGenerationMetrics(registry)

	creditsService, err := credits.NewService(credits.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create credits service", err)
		os.Exit(1)
	}

	idemService, err := idempotency.NewService(idempotency.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency service", err)
		os.Exit(1)
	}

	fetcher := media.NewFetcher(&http.Client{Timeout: 60 * time.Second}, int64(cfg.Media.MaxFetchMB)<<20)
	mediaService, err := media.NewService(media.NewRepository(dbClient.DB()), storeClient, fetcher, cfg.Media, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create media service", err)
		os.Exit(1)
	}

	pool := providers.NewPool(cfg.Providers)
	catalog, err := generation.NewCatalog(cfg.Generation, pool)
	if err != nil {
		logg.Error(context.Background(), "failed to build operation catalog", err)
		os.Exit(1)
	}

	providerClient := &http.Client{Timeout: cfg.Generation.AttemptTimeout}
	adapters := map[enums.ProviderFamily]providers.Adapter{
		enums.ProviderFamilyInference: providers.NewInferenceAdapter(cfg.Providers.InferenceBaseURL, providerClient),
		enums.ProviderFamilyQueue:     providers.NewQueueAdapter(cfg.Providers.QueueBaseURL, providerClient),
		enums.ProviderFamilySession:   providers.NewSessionAdapter(cfg.Providers.SessionBaseURL, providerClient),
	}

	generationService, err := generation.NewService(generation.ServiceParams{
		Catalog:  catalog,
		Pool:     pool,
		Adapters: adapters,
		Credits:  creditsService,
		Registry: idemService,
		Jobs:     generation.NewRepository(dbClient.DB()),
		Media:    mediaService,
		Logger:   logg,
		Metrics:  genMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create generation service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  users.NewRepository(dbClient.DB()),
		JWTConfig: cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:    dbClient,
		Credits:     creditsService,
		PasswordCfg: cfg.Password,
		JWTCfg:      cfg.JWT,
		CreditsCfg:  cfg.Credits,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:     payments.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Credits:  creditsService,
		Registry: idemService,
		Guard:    redisClient,
		Config:   cfg.Payments,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Storage:    storeClient,
			Registry:   registry,
			Auth:       authService,
			Register:   registerService,
			Generation: generationService,
			Media:      mediaService,
			Credits:    creditsService,
			Payments:   paymentsService,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
