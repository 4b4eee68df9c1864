package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// Repository manages persistence for idempotency key records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.IdempotencyKey) error
	FindByUserAndKey(ctx context.Context, userID uuid.UUID, key string) (*models.IdempotencyKey, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, status enums.IdempotencyStatus, cachedResult json.RawMessage, completedAt time.Time) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.IdempotencyKey) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByUserAndKey(ctx context.Context, userID uuid.UUID, key string) (*models.IdempotencyKey, error) {
	var record models.IdempotencyKey
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, status enums.IdempotencyStatus, cachedResult json.RawMessage, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.IdempotencyKey{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"cached_result": cachedResult,
			"completed_at":  completedAt,
		}).Error
}

func (r *repository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
