package controllers

import (
	"net/http"

	"github.com/forgelabs-ai/mediaforge-backend/api/middleware"
	"github.com/forgelabs-ai/mediaforge-backend/api/responses"
	"github.com/forgelabs-ai/mediaforge-backend/api/validators"
	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

func CreditsBalance(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"balance": balance})
	}
}

func CreditsLedger(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, offset := validators.Pagination(r, 50, 100)

		entries, err := svc.Entries(r.Context(), userID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}
