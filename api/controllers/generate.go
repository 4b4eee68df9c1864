package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/api/middleware"
	"github.com/forgelabs-ai/mediaforge-backend/api/responses"
	"github.com/forgelabs-ai/mediaforge-backend/api/validators"
	"github.com/forgelabs-ai/mediaforge-backend/internal/generation"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

// Generate runs one paid generation request end to end. Clients send an
// idempotency key to make retries safe; a replayed response carries the
// replayed flag instead of charging again.
func Generate(svc generation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req generation.GenerateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
			req.IdempotencyKey = key
		}

		resp, err := svc.Handle(r.Context(), userID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if resp.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}

func GenerationJob(svc generation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid job id"))
			return
		}

		job, err := svc.Job(r.Context(), userID, jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, job)
	}
}

func GenerationJobs(svc generation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, offset := validators.Pagination(r, 50, 100)

		jobs, err := svc.Jobs(r.Context(), userID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, jobs)
	}
}

// GenerationOperations lists the operation catalog with costs so clients
// can render pricing without hardcoding it.
func GenerationOperations(svc generation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Operations())
	}
}
