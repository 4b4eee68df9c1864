package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/forgelabs-ai/mediaforge-backend/api/responses"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

// Pinger exposes the health-check surface shared by all dependencies.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MediaForge-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every hard dependency. Any failure flips the whole
// endpoint to 503 so the load balancer stops routing here.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MediaForge-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				status[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				healthy = false
				status[name] = "down"
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				}
				continue
			}
			status[name] = "up"
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// ReadyDeps packages the standard dependency set for HealthReady.
func ReadyDeps(dbP, redisP, storeP Pinger) map[string]Pinger {
	return map[string]Pinger{
		"database": dbP,
		"redis":    redisP,
		"storage":  storeP,
	}
}
