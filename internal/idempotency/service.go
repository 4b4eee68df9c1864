package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

const maxKeyLength = 255

// Service is the idempotency registry. Begin claims a (user, key) pair
// exactly once; replays see the stored record instead of re-running the
// operation behind it.
type Service interface {
	Begin(ctx context.Context, userID uuid.UUID, key, operation string) (*BeginOutcome, error)
	Complete(ctx context.Context, recordID uuid.UUID, status enums.IdempotencyStatus, cachedResult json.RawMessage) error
	Find(ctx context.Context, userID uuid.UUID, key string) (*models.IdempotencyKey, error)
	Sweep(ctx context.Context, olderThan time.Duration) (int64, error)
}

// BeginOutcome reports whether the caller claimed the key. When Acquired is
// false the Record belongs to an earlier request with the same key.
type BeginOutcome struct {
	Record   *models.IdempotencyKey
	Acquired bool
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("idempotency repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("idempotency logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Begin(ctx context.Context, userID uuid.UUID, key, operation string) (*BeginOutcome, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if len(key) > maxKeyLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is too long")
	}

	record := &models.IdempotencyKey{
		UserID:    userID,
		Key:       key,
		Operation: operation,
		Status:    enums.IdempotencyStatusStarted,
	}
	err := s.repo.Create(ctx, record)
	if err == nil {
		return &BeginOutcome{Record: record, Acquired: true}, nil
	}
	if !db.IsUniqueViolation(err, "idx_idempotency_user_key") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim idempotency key")
	}

	// Lost the insert race or the key was used before. Either way the
	// existing record is authoritative.
	existing, findErr := s.repo.FindByUserAndKey(ctx, userID, key)
	if findErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load existing idempotency record")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id": userID,
		"key":     key,
		"status":  existing.Status,
	}), "idempotency key replayed")
	return &BeginOutcome{Record: existing, Acquired: false}, nil
}

func (s *service) Complete(ctx context.Context, recordID uuid.UUID, status enums.IdempotencyStatus, cachedResult json.RawMessage) error {
	if recordID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}
	if !status.Terminal() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q is not terminal", status))
	}

	if err := s.repo.MarkCompleted(ctx, recordID, status, cachedResult, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete idempotency record")
	}
	return nil
}

func (s *service) Find(ctx context.Context, userID uuid.UUID, key string) (*models.IdempotencyKey, error) {
	if userID == uuid.Nil || strings.TrimSpace(key) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and key are required")
	}
	record, err := s.repo.FindByUserAndKey(ctx, userID, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "idempotency key not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find idempotency record")
	}
	return record, nil
}

// Sweep removes records older than the retention window. Completed records
// only matter while a client might still replay the key, and a started
// record that old belongs to a crashed request and blocks its key forever.
func (s *service) Sweep(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "sweep window must be positive")
	}
	removed, err := s.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sweep idempotency records")
	}
	if removed > 0 {
		s.logg.Info(s.logg.WithField(ctx, "removed", removed), "idempotency records swept")
	}
	return removed, nil
}
