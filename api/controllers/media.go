package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/api/middleware"
	"github.com/forgelabs-ai/mediaforge-backend/api/responses"
	"github.com/forgelabs-ai/mediaforge-backend/api/validators"
	"github.com/forgelabs-ai/mediaforge-backend/internal/media"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

func MediaList(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.MediaStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			candidate := enums.MediaStatus(raw)
			if !candidate.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid media status filter"))
				return
			}
			status = &candidate
		}
		limit, offset := validators.Pagination(r, 50, 100)

		items, err := svc.List(r.Context(), userID, status, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// MediaSave promotes a temp item into permanent storage so the sweeper
// never reclaims it.
func MediaSave(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mediaID, err := uuid.Parse(chi.URLParam(r, "mediaId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid media id"))
			return
		}

		item, err := svc.Save(r.Context(), userID, mediaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func MediaDelete(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mediaID, err := uuid.Parse(chi.URLParam(r, "mediaId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid media id"))
			return
		}

		if err := svc.Delete(r.Context(), userID, mediaID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
