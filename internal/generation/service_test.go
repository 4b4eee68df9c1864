package generation

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/internal/idempotency"
	"github.com/forgelabs-ai/mediaforge-backend/internal/media"
	"github.com/forgelabs-ai/mediaforge-backend/internal/providers"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

type fakeCredits struct {
	credits.Service

	balance     int64
	chargeCalls int
}

func (f *fakeCredits) Charge(ctx context.Context, input credits.MutationInput) (*models.LedgerEntry, error) {
	f.chargeCalls++
	if f.balance < input.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
	}
	f.balance -= input.Amount
	return &models.LedgerEntry{
		UserID:        input.UserID,
		Delta:         -input.Amount,
		OperationType: input.Operation,
		BalanceAfter:  f.balance,
	}, nil
}

type fakeRegistry struct {
	records map[string]*models.IdempotencyKey
	byID    map[uuid.UUID]*models.IdempotencyKey
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		records: map[string]*models.IdempotencyKey{},
		byID:    map[uuid.UUID]*models.IdempotencyKey{},
	}
}

func (f *fakeRegistry) Begin(ctx context.Context, userID uuid.UUID, key, operation string) (*idempotency.BeginOutcome, error) {
	mapKey := userID.String() + "/" + key
	if existing, ok := f.records[mapKey]; ok {
		return &idempotency.BeginOutcome{Record: existing, Acquired: false}, nil
	}
	record := &models.IdempotencyKey{
		ID:        uuid.New(),
		UserID:    userID,
		Key:       key,
		Operation: operation,
		Status:    enums.IdempotencyStatusStarted,
	}
	f.records[mapKey] = record
	f.byID[record.ID] = record
	return &idempotency.BeginOutcome{Record: record, Acquired: true}, nil
}

func (f *fakeRegistry) Complete(ctx context.Context, recordID uuid.UUID, status enums.IdempotencyStatus, cachedResult json.RawMessage) error {
	record := f.byID[recordID]
	record.Status = status
	record.CachedResult = cachedResult
	now := time.Now()
	record.CompletedAt = &now
	return nil
}

func (f *fakeRegistry) Find(ctx context.Context, userID uuid.UUID, key string) (*models.IdempotencyKey, error) {
	record, ok := f.records[userID.String()+"/"+key]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "idempotency record not found")
	}
	return record, nil
}

func (f *fakeRegistry) Sweep(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

type fakeJobs struct {
	jobs map[uuid.UUID]*models.GenerationJob
}

func (f *fakeJobs) Create(ctx context.Context, job *models.GenerationJob) (*models.GenerationJob, error) {
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) MarkCompleted(ctx context.Context, id uuid.UUID, resultURL string) error {
	job := f.jobs[id]
	job.Status = enums.JobStatusCompleted
	job.ResultURL = &resultURL
	now := time.Now()
	job.ResolvedAt = &now
	return nil
}

func (f *fakeJobs) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	job := f.jobs[id]
	job.Status = enums.JobStatusFailed
	job.FailureReason = &reason
	now := time.Now()
	job.ResolvedAt = &now
	return nil
}

func (f *fakeJobs) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.GenerationJob, error) {
	job, ok := f.jobs[id]
	if !ok || job.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
	}
	return job, nil
}

func (f *fakeJobs) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationJob, error) {
	var out []models.GenerationJob
	for _, job := range f.jobs {
		if job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

type fakeIngester struct {
	err   error
	calls int
}

func (f *fakeIngester) Ingest(ctx context.Context, input media.IngestInput) (*media.MediaDTO, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &media.MediaDTO{
		ID:     uuid.New(),
		Status: enums.MediaStatusTemp,
		URL:    "https://cdn.test/temp/" + input.UserID.String() + "/out.png",
	}, nil
}

type fakeAdapter struct {
	family enums.ProviderFamily
	result *providers.Result
	err    error
	calls  int
}

func (f *fakeAdapter) Family() enums.ProviderFamily { return f.family }

func (f *fakeAdapter) Generate(ctx context.Context, req providers.Request, model providers.ModelConfig, cred providers.Credential) (*providers.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testHarness struct {
	service  Service
	credits  *fakeCredits
	registry *fakeRegistry
	jobs     *fakeJobs
	ingester *fakeIngester
	adapter  *fakeAdapter
}

func newTestHarness(t *testing.T, balance int64) *testHarness {
	t.Helper()

	pool := providers.NewPool(config.ProvidersConfig{
		InferenceKeys: []string{"inf-key-0"},
		SessionKeys:   []string{"sess-key-0"},
	})
	// Retries off so failure tests return without sleeping.
	catalog, err := NewCatalog(config.GenerationConfig{
		MaxRetries:     0,
		RetryDelay:     time.Millisecond,
		AttemptTimeout: time.Second,
		PollInterval:   time.Millisecond,
		PollAttempts:   2,
	}, pool)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	h := &testHarness{
		credits:  &fakeCredits{balance: balance},
		registry: newFakeRegistry(),
		jobs:     &fakeJobs{jobs: map[uuid.UUID]*models.GenerationJob{}},
		ingester: &fakeIngester{},
		adapter: &fakeAdapter{
			family: enums.ProviderFamilyInference,
			result: &providers.Result{MediaURL: "https://provider.test/out.png", MimeType: "image/png"},
		},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Catalog:  catalog,
		Pool:     pool,
		Adapters: map[enums.ProviderFamily]providers.Adapter{enums.ProviderFamilyInference: h.adapter},
		Credits:  h.credits,
		Registry: h.registry,
		Jobs:     h.jobs,
		Media:    h.ingester,
		Logger:   logg,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.service = svc
	return h
}

func TestHandleChargesBeforeCallAndCompletes(t *testing.T) {
	h := newTestHarness(t, 3000)
	userID := uuid.New()

	resp, err := h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation:      enums.OperationImageGenerate,
		Prompt:         "a lighthouse at dusk",
		IdempotencyKey: "abc",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Cost != 500 {
		t.Fatalf("cost = %d, want 500", resp.Cost)
	}
	if resp.Balance != 2500 {
		t.Fatalf("balance = %d, want 2500", resp.Balance)
	}
	if resp.Status != enums.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", resp.Status)
	}
	if resp.Media == nil || resp.Media.URL == "" {
		t.Fatalf("expected ingested media in response, got %+v", resp.Media)
	}
	if resp.Replayed {
		t.Fatal("first request must not be marked replayed")
	}

	job := h.jobs.jobs[resp.JobID]
	if job == nil {
		t.Fatal("expected a persisted job row")
	}
	if job.Status != enums.JobStatusCompleted || job.ResultURL == nil {
		t.Fatalf("job = %+v, want completed with result url", job)
	}

	record, err := h.registry.Find(context.Background(), userID, "abc")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if record.Status != enums.IdempotencyStatusSucceeded {
		t.Fatalf("registry status = %q, want succeeded", record.Status)
	}
}

func TestHandleReplaysCachedResultWithoutRecharging(t *testing.T) {
	h := newTestHarness(t, 3000)
	userID := uuid.New()
	req := GenerateRequest{
		Operation:      enums.OperationImageGenerate,
		Prompt:         "a lighthouse at dusk",
		IdempotencyKey: "abc",
	}

	first, err := h.service.Handle(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	second, err := h.service.Handle(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("second Handle: %v", err)
	}

	if h.adapter.calls != 1 {
		t.Fatalf("adapter calls = %d, want 1", h.adapter.calls)
	}
	if h.credits.chargeCalls != 1 {
		t.Fatalf("charge calls = %d, want 1", h.credits.chargeCalls)
	}
	if !second.Replayed {
		t.Fatal("replay must be marked")
	}
	if second.JobID != first.JobID {
		t.Fatalf("replayed job id = %s, want %s", second.JobID, first.JobID)
	}
	if h.credits.balance != 2500 {
		t.Fatalf("balance = %d, want 2500 after a single charge", h.credits.balance)
	}
}

func TestHandleInsufficientCredits(t *testing.T) {
	h := newTestHarness(t, 0)
	userID := uuid.New()

	_, err := h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation:      enums.OperationImageGenerate,
		Prompt:         "a lighthouse at dusk",
		IdempotencyKey: "def",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientCredits) {
		t.Fatalf("err = %v, want insufficient credits", err)
	}
	if len(h.jobs.jobs) != 0 {
		t.Fatalf("expected no job rows, got %d", len(h.jobs.jobs))
	}
	if h.adapter.calls != 0 {
		t.Fatalf("adapter calls = %d, want 0", h.adapter.calls)
	}

	// Replaying the failed key must reproduce the error without charging.
	_, err = h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation:      enums.OperationImageGenerate,
		Prompt:         "a lighthouse at dusk",
		IdempotencyKey: "def",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientCredits) {
		t.Fatalf("replay err = %v, want insufficient credits", err)
	}
	if h.credits.chargeCalls != 1 {
		t.Fatalf("charge calls = %d, want 1", h.credits.chargeCalls)
	}
}

func TestHandleProviderFailureKeepsCharge(t *testing.T) {
	h := newTestHarness(t, 3000)
	h.adapter.err = &providers.Failure{
		Kind:   providers.FailureProvider,
		Status: 422,
		Detail: `{"error":"unsupported aspect ratio for mf-image-v2"}`,
	}
	userID := uuid.New()

	_, err := h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation:      enums.OperationImageGenerate,
		Prompt:         "a lighthouse at dusk",
		IdempotencyKey: "abc",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeProviderError) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if strings.Contains(err.Error(), "aspect ratio") {
		t.Fatalf("raw provider detail leaked into user error: %v", err)
	}

	// The charge sticks even though the provider call failed.
	if h.credits.balance != 2500 {
		t.Fatalf("balance = %d, want 2500", h.credits.balance)
	}

	if len(h.jobs.jobs) != 1 {
		t.Fatalf("job rows = %d, want 1", len(h.jobs.jobs))
	}
	for _, job := range h.jobs.jobs {
		if job.Status != enums.JobStatusFailed {
			t.Fatalf("job status = %q, want failed", job.Status)
		}
		if job.FailureReason == nil || strings.Contains(*job.FailureReason, "aspect ratio") {
			t.Fatalf("job failure reason must be the generic message, got %v", job.FailureReason)
		}
	}

	record, findErr := h.registry.Find(context.Background(), userID, "abc")
	if findErr != nil {
		t.Fatalf("Find: %v", findErr)
	}
	if record.Status != enums.IdempotencyStatusFailed {
		t.Fatalf("registry status = %q, want failed", record.Status)
	}
}

func TestHandleInFlightKeyConflicts(t *testing.T) {
	h := newTestHarness(t, 3000)
	userID := uuid.New()

	if _, err := h.registry.Begin(context.Background(), userID, "abc", "image_generate"); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	_, err := h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation:      enums.OperationImageGenerate,
		Prompt:         "a lighthouse at dusk",
		IdempotencyKey: "abc",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDuplicateRequest) {
		t.Fatalf("err = %v, want duplicate request", err)
	}
	if h.adapter.calls != 0 || h.credits.chargeCalls != 0 {
		t.Fatal("in-flight conflict must not reach the charge or the provider")
	}
}

func TestHandleIngestFailureMarksJobFailed(t *testing.T) {
	h := newTestHarness(t, 3000)
	h.ingester.err = pkgerrors.New(pkgerrors.CodeStorage, "upload failed")
	userID := uuid.New()

	_, err := h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation: enums.OperationImageGenerate,
		Prompt:    "a lighthouse at dusk",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStorage) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if h.credits.balance != 2500 {
		t.Fatalf("balance = %d, want 2500", h.credits.balance)
	}
	for _, job := range h.jobs.jobs {
		if job.Status != enums.JobStatusFailed {
			t.Fatalf("job status = %q, want failed", job.Status)
		}
	}
}

func TestHandleWithoutKeySkipsRegistry(t *testing.T) {
	h := newTestHarness(t, 3000)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := h.service.Handle(context.Background(), userID, GenerateRequest{
			Operation: enums.OperationImageGenerate,
			Prompt:    "a lighthouse at dusk",
		}); err != nil {
			t.Fatalf("Handle %d: %v", i, err)
		}
	}
	if h.credits.chargeCalls != 2 {
		t.Fatalf("charge calls = %d, want 2 without idempotency", h.credits.chargeCalls)
	}
	if len(h.registry.records) != 0 {
		t.Fatalf("registry records = %d, want 0", len(h.registry.records))
	}
}

func TestHandleRejectsUnknownAndDisabledOperations(t *testing.T) {
	h := newTestHarness(t, 3000)
	userID := uuid.New()

	_, err := h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation: enums.OperationKind("hologram"),
		Prompt:    "a lighthouse at dusk",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("unknown operation err = %v, want validation", err)
	}

	// The harness pool has no queue credentials, so video is disabled.
	_, err = h.service.Handle(context.Background(), userID, GenerateRequest{
		Operation: enums.OperationVideoGenerate,
		Prompt:    "a lighthouse at dusk",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeOperationDisabled) {
		t.Fatalf("disabled operation err = %v, want operation disabled", err)
	}
	if h.credits.chargeCalls != 0 {
		t.Fatal("rejected operations must not charge")
	}
}

func TestHandleRequiresInputImageForEdits(t *testing.T) {
	h := newTestHarness(t, 3000)

	_, err := h.service.Handle(context.Background(), uuid.New(), GenerateRequest{
		Operation: enums.OperationImageEdit,
		Prompt:    "remove the background",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestOperationsReflectCredentialAvailability(t *testing.T) {
	h := newTestHarness(t, 0)

	ops := h.service.Operations()
	if len(ops) != 3 {
		t.Fatalf("operations = %d, want 3", len(ops))
	}
	enabled := map[enums.OperationKind]bool{}
	for _, op := range ops {
		enabled[op.Operation] = op.Enabled
	}
	if !enabled[enums.OperationImageGenerate] || !enabled[enums.OperationImageEdit] {
		t.Fatalf("image operations should be enabled: %+v", enabled)
	}
	if enabled[enums.OperationVideoGenerate] {
		t.Fatal("video should be disabled without queue credentials")
	}
}

func TestJobLookupScopedToOwner(t *testing.T) {
	h := newTestHarness(t, 3000)
	owner := uuid.New()

	resp, err := h.service.Handle(context.Background(), owner, GenerateRequest{
		Operation: enums.OperationImageGenerate,
		Prompt:    "a lighthouse at dusk",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if _, err := h.service.Job(context.Background(), owner, resp.JobID); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := h.service.Job(context.Background(), uuid.New(), resp.JobID); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("stranger lookup err = %v, want not found", err)
	}
}
