package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// Repository exposes generation job persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a jobs repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a job row.
func (r *Repository) Create(ctx context.Context, job *models.GenerationJob) (*models.GenerationJob, error) {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// MarkCompleted resolves a job with its result URL.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, resultURL string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      enums.JobStatusCompleted,
			"result_url":  resultURL,
			"resolved_at": now,
		}).Error
}

// MarkFailed resolves a job with its failure reason.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         enums.JobStatusFailed,
			"failure_reason": reason,
			"resolved_at":    now,
		}).Error
}

// FindByIDForUser retrieves a job scoped to its owner.
func (r *Repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := r.db.WithContext(ctx).
		First(&job, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByUser returns the user's jobs, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
