package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgelabs-ai/mediaforge-backend/api/controllers"
	"github.com/forgelabs-ai/mediaforge-backend/api/middleware"
	"github.com/forgelabs-ai/mediaforge-backend/internal/auth"
	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/internal/generation"
	"github.com/forgelabs-ai/mediaforge-backend/internal/media"
	"github.com/forgelabs-ai/mediaforge-backend/internal/payments"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/redis"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/storage/s3"
)

// Deps bundles everything the HTTP surface needs. Optional fields (Redis,
// metrics registry) may be nil; the affected features degrade gracefully.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Storage  s3.Pinger
	Registry *prometheus.Registry

	Auth       auth.Service
	Register   auth.RegisterService
	Generation generation.Service
	Media      media.Service
	Credits    credits.Service
	Payments   payments.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy("login", cfg.RateLimit.LoginWindow, cfg.RateLimit.LoginLimit)
	registerPolicy := middleware.NewAuthRateLimitPolicy("register", cfg.RateLimit.LoginWindow, cfg.RateLimit.LoginLimit)

	// Explicit interface vars so a nil *redis.Client stays a nil interface
	// inside the middleware.
	var counters middleware.RateLimiterStore
	var windows middleware.FixedWindowStore
	if deps.Redis != nil {
		counters = deps.Redis
		windows = deps.Redis
	}

	var redisPing controllers.Pinger
	if deps.Redis != nil {
		redisPing = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, controllers.ReadyDeps(deps.DB, redisPing, deps.Storage)))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", controllers.PaymentsWebhook(deps.Payments, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, counters, logg)).
			Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, counters, logg)).
			Post("/register", controllers.AuthRegister(deps.Register, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/operations", controllers.GenerationOperations(deps.Generation))
		r.With(middleware.UserRateLimit(cfg.RateLimit, windows, logg)).
			Post("/generate", controllers.Generate(deps.Generation, logg))
		r.Get("/jobs", controllers.GenerationJobs(deps.Generation, logg))
		r.Get("/jobs/{jobId}", controllers.GenerationJob(deps.Generation, logg))

		r.Route("/media", func(r chi.Router) {
			r.Get("/", controllers.MediaList(deps.Media, logg))
			r.Post("/{mediaId}/save", controllers.MediaSave(deps.Media, logg))
			r.Delete("/{mediaId}", controllers.MediaDelete(deps.Media, logg))
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", controllers.CreditsBalance(deps.Credits, logg))
			r.Get("/ledger", controllers.CreditsLedger(deps.Credits, logg))
			r.Get("/packs", controllers.CreditPacks(deps.Payments))
			r.Post("/purchase", controllers.CreditsPurchase(deps.Payments, logg))
			r.Get("/purchases", controllers.Purchases(deps.Payments, logg))
		})
	})

	return r
}
