package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) (*models.Purchase, error)
	FindByExternalID(ctx context.Context, invoiceID, paymentID string) (*models.Purchase, error)
	UpdateSettlement(ctx context.Context, id uuid.UUID, update SettlementUpdate) error
	// MarkCredited flips the credited flag and reports how many rows
	// changed; zero means another delivery already credited the purchase.
	MarkCredited(ctx context.Context, id uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Purchase, error)
}

// SettlementUpdate carries the webhook fields persisted on every delivery.
type SettlementUpdate struct {
	PaymentStatus enums.PaymentStatus
	PaymentID     *string
	PaidAmount    decimal.NullDecimal
	PaidCurrency  *string
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) (*models.Purchase, error) {
	if err := r.db.WithContext(ctx).Create(purchase).Error; err != nil {
		return nil, err
	}
	return purchase, nil
}

func (r *repository) FindByExternalID(ctx context.Context, invoiceID, paymentID string) (*models.Purchase, error) {
	query := r.db.WithContext(ctx).Model(&models.Purchase{})
	switch {
	case invoiceID != "" && paymentID != "":
		query = query.Where("external_invoice_id = ? OR external_payment_id = ?", invoiceID, paymentID)
	case invoiceID != "":
		query = query.Where("external_invoice_id = ?", invoiceID)
	case paymentID != "":
		query = query.Where("external_payment_id = ?", paymentID)
	default:
		return nil, gorm.ErrRecordNotFound
	}

	var purchase models.Purchase
	if err := query.First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) UpdateSettlement(ctx context.Context, id uuid.UUID, update SettlementUpdate) error {
	fields := map[string]any{
		"payment_status": update.PaymentStatus,
		"updated_at":     time.Now(),
	}
	if update.PaymentID != nil {
		fields["external_payment_id"] = *update.PaymentID
	}
	if update.PaidAmount.Valid {
		fields["paid_amount"] = update.PaidAmount
	}
	if update.PaidCurrency != nil {
		fields["paid_currency"] = *update.PaidCurrency
	}
	return r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) MarkCredited(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND credited = ?", id, false).
		Update("credited", true)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&purchases).Error
	return purchases, err
}
