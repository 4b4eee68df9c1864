package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/forgelabs-ai/mediaforge-backend/api/responses"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

// FixedWindowStore is the counter surface the per-user throttle needs.
type FixedWindowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// UserRateLimit throttles an authenticated surface per user. Counters live
// in Redis when a store is supplied; otherwise an in-process fallback keeps
// per-user windows and sweeps expired ones on each pass.
func UserRateLimit(cfg config.RateLimitConfig, store FixedWindowStore, logg *logger.Logger) func(http.Handler) http.Handler {
	fallback := newLocalWindows()

	return func(next http.Handler) http.Handler {
		if cfg.GenerateWindow <= 0 || cfg.GenerateLimit <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := true
			if store != nil {
				var err error
				allowed, _, err = store.FixedWindowAllow(ctx, "generate:"+userID, int64(cfg.GenerateLimit), cfg.GenerateWindow)
				if err != nil {
					if logg != nil {
						logg.Warn(ctx, "rate limit store unavailable, using local counters: "+err.Error())
					}
					allowed = fallback.allow(userID, int64(cfg.GenerateLimit), cfg.GenerateWindow)
				}
			} else {
				allowed = fallback.allow(userID, int64(cfg.GenerateLimit), cfg.GenerateWindow)
			}

			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "limit", cfg.GenerateLimit), "generate.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "generation rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type localWindow struct {
	count   int64
	resetAt time.Time
}

// localWindows is the in-process fallback counter map. Expired windows are
// swept opportunistically so the map stays bounded by active users.
type localWindows struct {
	mu      sync.Mutex
	entries map[string]*localWindow
}

func newLocalWindows() *localWindows {
	return &localWindows{entries: map[string]*localWindow{}}
}

func (l *localWindows) allow(key string, limit int64, window time.Duration) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, entry := range l.entries {
		if now.After(entry.resetAt) {
			delete(l.entries, k)
		}
	}

	entry, ok := l.entries[key]
	if !ok {
		l.entries[key] = &localWindow{count: 1, resetAt: now.Add(window)}
		return limit >= 1
	}
	entry.count++
	return entry.count <= limit
}
