package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

type recordKey struct {
	userID uuid.UUID
	key    string
}

type stubRepo struct {
	records   map[recordKey]*models.IdempotencyKey
	createErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: map[recordKey]*models.IdempotencyKey{}}
}

func (r *stubRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubRepo) Create(ctx context.Context, record *models.IdempotencyKey) error {
	if r.createErr != nil {
		return r.createErr
	}
	k := recordKey{record.UserID, record.Key}
	if _, exists := r.records[k]; exists {
		return errors.New(`duplicate key value violates unique constraint "idx_idempotency_user_key"`)
	}
	record.ID = uuid.New()
	record.CreatedAt = time.Now().UTC()
	r.records[k] = record
	return nil
}

func (r *stubRepo) FindByUserAndKey(ctx context.Context, userID uuid.UUID, key string) (*models.IdempotencyKey, error) {
	record, ok := r.records[recordKey{userID, key}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *stubRepo) MarkCompleted(ctx context.Context, id uuid.UUID, status enums.IdempotencyStatus, cachedResult json.RawMessage, completedAt time.Time) error {
	for _, record := range r.records {
		if record.ID == id {
			record.Status = status
			record.CachedResult = cachedResult
			record.CompletedAt = &completedAt
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *stubRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	for k, record := range r.records {
		if record.CreatedAt.Before(before) {
			delete(r.records, k)
			removed++
		}
	}
	return removed, nil
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(repo, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestBeginClaimsFreshKey(t *testing.T) {
	svc := newTestService(t, newStubRepo())

	outcome, err := svc.Begin(context.Background(), uuid.New(), "abc", "image_generate")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !outcome.Acquired {
		t.Fatal("expected fresh key to be acquired")
	}
	if outcome.Record.Status != enums.IdempotencyStatusStarted {
		t.Fatalf("expected started status got %s", outcome.Record.Status)
	}
}

func TestBeginReplayReturnsExistingRecord(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo)
	userID := uuid.New()

	first, err := svc.Begin(context.Background(), userID, "abc", "image_generate")
	if err != nil {
		t.Fatalf("first begin: %v", err)
	}
	cached := json.RawMessage(`{"job_id":"j-1"}`)
	if err := svc.Complete(context.Background(), first.Record.ID, enums.IdempotencyStatusSucceeded, cached); err != nil {
		t.Fatalf("complete: %v", err)
	}

	second, err := svc.Begin(context.Background(), userID, "abc", "image_generate")
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if second.Acquired {
		t.Fatal("replay must not acquire the key")
	}
	if second.Record.Status != enums.IdempotencyStatusSucceeded {
		t.Fatalf("expected succeeded status got %s", second.Record.Status)
	}
	if string(second.Record.CachedResult) != string(cached) {
		t.Fatalf("expected cached result %s got %s", cached, second.Record.CachedResult)
	}
}

func TestBeginSameKeyDifferentUsers(t *testing.T) {
	svc := newTestService(t, newStubRepo())

	a, err := svc.Begin(context.Background(), uuid.New(), "shared", "image_generate")
	if err != nil {
		t.Fatalf("begin a: %v", err)
	}
	b, err := svc.Begin(context.Background(), uuid.New(), "shared", "image_generate")
	if err != nil {
		t.Fatalf("begin b: %v", err)
	}
	if !a.Acquired || !b.Acquired {
		t.Fatal("the same key must be independent per user")
	}
}

func TestBeginValidation(t *testing.T) {
	svc := newTestService(t, newStubRepo())

	if _, err := svc.Begin(context.Background(), uuid.Nil, "abc", "op"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for nil user, got %v", err)
	}
	if _, err := svc.Begin(context.Background(), uuid.New(), "  ", "op"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for blank key, got %v", err)
	}
}

func TestCompleteRejectsNonTerminalStatus(t *testing.T) {
	svc := newTestService(t, newStubRepo())

	err := svc.Complete(context.Background(), uuid.New(), enums.IdempotencyStatusStarted, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSweepRemovesOnlyOldRecords(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo)
	userID := uuid.New()

	if _, err := svc.Begin(context.Background(), userID, "stale", "op"); err != nil {
		t.Fatalf("begin stale: %v", err)
	}
	if _, err := svc.Begin(context.Background(), userID, "fresh", "op"); err != nil {
		t.Fatalf("begin fresh: %v", err)
	}
	done, err := svc.Begin(context.Background(), userID, "done", "op")
	if err != nil {
		t.Fatalf("begin done: %v", err)
	}
	if err := svc.Complete(context.Background(), done.Record.ID, enums.IdempotencyStatusSucceeded, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	repo.records[recordKey{userID, "stale"}].CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	repo.records[recordKey{userID, "done"}].CreatedAt = time.Now().UTC().Add(-48 * time.Hour)

	removed, err := svc.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed got %d", removed)
	}
	if _, err := svc.Find(context.Background(), userID, "stale"); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("stale record must be gone, got %v", err)
	}
	if _, err := svc.Find(context.Background(), userID, "fresh"); err != nil {
		t.Fatalf("fresh record must survive: %v", err)
	}
}
