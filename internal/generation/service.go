package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/internal/idempotency"
	"github.com/forgelabs-ai/mediaforge-backend/internal/media"
	"github.com/forgelabs-ai/mediaforge-backend/internal/providers"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/metrics"
)

type jobsRepository interface {
	Create(ctx context.Context, job *models.GenerationJob) (*models.GenerationJob, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, resultURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.GenerationJob, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationJob, error)
}

type mediaIngester interface {
	Ingest(ctx context.Context, input media.IngestInput) (*media.MediaDTO, error)
}

// Service orchestrates a generation request end to end: idempotency claim,
// upfront charge, provider call with rotation and retries, result
// ingestion, and bookkeeping. Credits are charged before the provider call
// and are not refunded when the call fails.
type Service interface {
	Handle(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*GenerateResponse, error)
	Job(ctx context.Context, userID, jobID uuid.UUID) (*JobDTO, error)
	Jobs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]JobDTO, error)
	Operations() []OperationDTO
}

// ServiceParams bundles the orchestrator dependencies.
type ServiceParams struct {
	Catalog  *Catalog
	Pool     *providers.Pool
	Adapters map[enums.ProviderFamily]providers.Adapter
	Credits  credits.Service
	Registry idempotency.Service
	Jobs     jobsRepository
	Media    mediaIngester
	Logger   *logger.Logger
	Metrics  *metrics.GenerationMetrics
}

type service struct {
	catalog  *Catalog
	pool     *providers.Pool
	adapters map[enums.ProviderFamily]providers.Adapter
	credits  credits.Service
	registry idempotency.Service
	jobs     jobsRepository
	media    mediaIngester
	logg     *logger.Logger
	metrics  *metrics.GenerationMetrics

	newRetrier func(family enums.ProviderFamily, model providers.ModelConfig) retrier
}

type retrier interface {
	Execute(ctx context.Context, attempt providers.AttemptFunc) (*providers.Result, error)
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Catalog == nil:
		return nil, fmt.Errorf("operation catalog required")
	case params.Pool == nil:
		return nil, fmt.Errorf("credential pool required")
	case len(params.Adapters) == 0:
		return nil, fmt.Errorf("provider adapters required")
	case params.Credits == nil:
		return nil, fmt.Errorf("credits service required")
	case params.Registry == nil:
		return nil, fmt.Errorf("idempotency registry required")
	case params.Jobs == nil:
		return nil, fmt.Errorf("jobs repository required")
	case params.Media == nil:
		return nil, fmt.Errorf("media service required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}

	s := &service{
		catalog:  params.Catalog,
		pool:     params.Pool,
		adapters: params.Adapters,
		credits:  params.Credits,
		registry: params.Registry,
		jobs:     params.Jobs,
		media:    params.Media,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}
	s.newRetrier = func(family enums.ProviderFamily, model providers.ModelConfig) retrier {
		return providers.NewRetrier(s.pool, family, model, s.logg, s.metrics)
	}
	return s, nil
}

func (s *service) Handle(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*GenerateResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	spec, err := s.catalog.Resolve(req.Operation)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOperation(ctx, string(req.Operation))
	ctx = s.logg.WithProvider(ctx, string(spec.Family))

	// Claim the idempotency key before any money moves. A replayed key
	// short-circuits to the recorded outcome and never re-charges.
	var claim *idempotency.BeginOutcome
	if req.IdempotencyKey != "" {
		claim, err = s.registry.Begin(ctx, userID, req.IdempotencyKey, string(req.Operation))
		if err != nil {
			return nil, err
		}
		if !claim.Acquired {
			return s.replay(claim.Record)
		}
	}

	resp, err := s.run(ctx, userID, req, spec)
	if claim != nil {
		s.completeClaim(ctx, claim.Record.ID, resp, err)
	}
	return resp, err
}

// run performs the charged generation flow. The charge happens first and
// sticks regardless of how the provider call ends.
func (s *service) run(ctx context.Context, userID uuid.UUID, req GenerateRequest, spec OperationSpec) (*GenerateResponse, error) {
	chargeMeta, _ := json.Marshal(map[string]string{
		"operation":       string(req.Operation),
		"idempotency_key": req.IdempotencyKey,
	})
	entry, err := s.credits.Charge(ctx, credits.MutationInput{
		UserID:    userID,
		Amount:    spec.Cost,
		Operation: enums.LedgerOperationGenerationCharge,
		Metadata:  chargeMeta,
	})
	if err != nil {
		return nil, err
	}

	job, err := s.createJob(ctx, userID, req, spec)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, provErr := s.callProvider(ctx, req, spec)
	s.metrics.ObserveDuration(string(spec.Family), string(req.Operation), time.Since(started))

	if provErr != nil {
		mapped := mapProviderError(provErr)
		s.metrics.IncOutcome(string(spec.Family), string(req.Operation), "failed")
		s.logg.Error(s.logg.WithField(ctx, "job_id", job.ID), "provider call failed", provErr)
		if err := s.jobs.MarkFailed(ctx, job.ID, mapped.Message()); err != nil {
			s.logg.Error(ctx, "mark job failed", err)
		}
		return nil, mapped
	}

	ingested, err := s.media.Ingest(ctx, media.IngestInput{
		UserID:    userID,
		SourceURL: result.MediaURL,
		Prompt:    &req.Prompt,
	})
	if err != nil {
		s.metrics.IncOutcome(string(spec.Family), string(req.Operation), "ingest_failed")
		s.logg.Error(s.logg.WithField(ctx, "job_id", job.ID), "result ingestion failed", err)
		if markErr := s.jobs.MarkFailed(ctx, job.ID, "result could not be stored"); markErr != nil {
			s.logg.Error(ctx, "mark job failed", markErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "store generation result")
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, ingested.URL); err != nil {
		// The media is stored and the charge stands; surfacing an error
		// here would look like a failed generation to the user.
		s.logg.Error(ctx, "mark job completed", err)
	}
	s.metrics.IncOutcome(string(spec.Family), string(req.Operation), "completed")

	return &GenerateResponse{
		JobID:     job.ID,
		Operation: req.Operation,
		Status:    enums.JobStatusCompleted,
		Cost:      spec.Cost,
		Balance:   entry.BalanceAfter,
		Media:     ingested,
	}, nil
}

func (s *service) createJob(ctx context.Context, userID uuid.UUID, req GenerateRequest, spec OperationSpec) (*models.GenerationJob, error) {
	params, _ := json.Marshal(req)
	job := &models.GenerationJob{
		UserID:         userID,
		OperationType:  req.Operation,
		ProviderFamily: spec.Family,
		Cost:           spec.Cost,
		Status:         enums.JobStatusProcessing,
		Params:         params,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		job.IdempotencyKey = &key
	}
	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record generation job")
	}
	return created, nil
}

func (s *service) callProvider(ctx context.Context, req GenerateRequest, spec OperationSpec) (*providers.Result, error) {
	adapter, ok := s.adapters[spec.Family]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no adapter for family %q", spec.Family))
	}
	provReq := providers.Request{
		Kind:           req.Operation,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		Guidance:       req.Guidance,
		Seed:           req.Seed,
		InputImageURL:  req.InputImageURL,
		DurationSec:    req.DurationSec,
	}
	return s.newRetrier(spec.Family, spec.Model).Execute(ctx, func(ctx context.Context, cred providers.Credential) (*providers.Result, error) {
		return adapter.Generate(ctx, provReq, spec.Model, cred)
	})
}

// cachedFailure is the shape stored in the registry when a keyed request
// fails, so replays reproduce the original error.
type cachedFailure struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (s *service) completeClaim(ctx context.Context, recordID uuid.UUID, resp *GenerateResponse, runErr error) {
	var status enums.IdempotencyStatus
	var cached []byte
	if runErr == nil {
		status = enums.IdempotencyStatusSucceeded
		cached, _ = json.Marshal(resp)
	} else {
		status = enums.IdempotencyStatusFailed
		appErr := pkgerrors.As(runErr)
		if appErr == nil {
			appErr = pkgerrors.Wrap(pkgerrors.CodeInternal, runErr, "generation failed")
		}
		cached, _ = json.Marshal(cachedFailure{
			ErrorCode: string(appErr.Code()),
			Message:   appErr.Message(),
		})
	}
	if err := s.registry.Complete(ctx, recordID, status, cached); err != nil {
		s.logg.Error(ctx, "complete idempotency record", err)
	}
}

// replay reproduces the recorded outcome of an earlier keyed request.
func (s *service) replay(record *models.IdempotencyKey) (*GenerateResponse, error) {
	switch record.Status {
	case enums.IdempotencyStatusStarted:
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateRequest, "a request with this idempotency key is still in progress")
	case enums.IdempotencyStatusSucceeded:
		var resp GenerateResponse
		if err := json.Unmarshal(record.CachedResult, &resp); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cached result")
		}
		resp.Replayed = true
		return &resp, nil
	case enums.IdempotencyStatusFailed:
		var failure cachedFailure
		if err := json.Unmarshal(record.CachedResult, &failure); err != nil || failure.ErrorCode == "" {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "generation previously failed")
		}
		return nil, pkgerrors.New(pkgerrors.Code(failure.ErrorCode), failure.Message)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unexpected idempotency status %q", record.Status))
	}
}

func (s *service) Job(ctx context.Context, userID, jobID uuid.UUID) (*JobDTO, error) {
	if userID == uuid.Nil || jobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and job id are required")
	}
	job, err := s.jobs.FindByIDForUser(ctx, jobID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find job")
	}
	return jobToDTO(job), nil
}

func (s *service) Jobs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]JobDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	jobs, err := s.jobs.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list jobs")
	}
	dtos := make([]JobDTO, 0, len(jobs))
	for i := range jobs {
		dtos = append(dtos, *jobToDTO(&jobs[i]))
	}
	return dtos, nil
}

func (s *service) Operations() []OperationDTO {
	specs := s.catalog.Specs()
	out := make([]OperationDTO, 0, len(specs))
	for _, spec := range specs {
		out = append(out, OperationDTO{Operation: spec.Kind, Cost: spec.Cost, Enabled: spec.Enabled})
	}
	return out
}

func validateRequest(req GenerateRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}
	if req.Operation == enums.OperationImageEdit && strings.TrimSpace(req.InputImageURL) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "input image is required for edits")
	}
	if (req.Width == 0) != (req.Height == 0) {
		return pkgerrors.New(pkgerrors.CodeValidation, "width and height must be set together")
	}
	return nil
}

// mapProviderError converts a normalized provider failure into the error
// surfaced to users. The raw provider detail stays in logs.
func mapProviderError(err error) *pkgerrors.Error {
	f, ok := providers.AsFailure(err)
	if !ok {
		if appErr := pkgerrors.As(err); appErr != nil {
			return appErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generation failed")
	}
	switch f.Kind {
	case providers.FailureQuota:
		return pkgerrors.New(pkgerrors.CodeProviderQuota, "generation capacity is exhausted, please try again shortly")
	case providers.FailureTimeout:
		return pkgerrors.New(pkgerrors.CodeProviderTimeout, "generation timed out, please try again")
	case providers.FailureNetwork:
		return pkgerrors.New(pkgerrors.CodeNetwork, "the generation provider could not be reached")
	default:
		return pkgerrors.New(pkgerrors.CodeProviderError, "generation failed, please try again")
	}
}
