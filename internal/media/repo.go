package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// Repository exposes media metadata persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a media repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a media record.
func (r *Repository) Create(ctx context.Context, media *models.Media) (*models.Media, error) {
	if err := r.db.WithContext(ctx).Create(media).Error; err != nil {
		return nil, err
	}
	return media, nil
}

// FindByIDForUser retrieves a media record scoped to its owner.
func (r *Repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Media, error) {
	var m models.Media
	if err := r.db.WithContext(ctx).
		First(&m, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByUser returns the user's media, newest first, optionally filtered
// by status.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, status *enums.MediaStatus, limit, offset int) ([]models.Media, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var items []models.Media
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListTempOverflow returns the user's temp rows beyond the keep newest,
// oldest first, so callers can prune them in order.
func (r *Repository) ListTempOverflow(ctx context.Context, userID uuid.UUID, keep int) ([]models.Media, error) {
	var items []models.Media
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.MediaStatusTemp).
		Order("created_at DESC").
		Offset(keep).
		Limit(1000).
		Find(&items).Error; err != nil {
		return nil, err
	}
	// Oldest last in the newest-first listing; reverse so pruning walks
	// oldest first.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

// ListExpiredTemp returns temp rows whose expiry passed before the cutoff.
func (r *Repository) ListExpiredTemp(ctx context.Context, before time.Time, limit int) ([]models.Media, error) {
	var items []models.Media
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.MediaStatusTemp, before).
		Order("expires_at ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkSaved flips a temp row to the permanent namespace.
func (r *Repository) MarkSaved(ctx context.Context, id uuid.UUID, storageKey, url string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ? AND status = ?", id, enums.MediaStatusTemp).
		Updates(map[string]any{
			"status":      enums.MediaStatusSaved,
			"storage_key": storageKey,
			"url":         url,
			"expires_at":  nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a media record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Media{}).Error
}
