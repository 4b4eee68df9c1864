package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// Purchase tracks a credit top-up from initiation through webhook
// settlement. Credited flips exactly once; webhook redeliveries after that
// are no-ops.
type Purchase struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ExternalInvoiceID string              `gorm:"column:external_invoice_id;not null;uniqueIndex"`
	ExternalPaymentID *string             `gorm:"column:external_payment_id;index"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(18,8);not null"`
	Currency          string              `gorm:"column:currency;not null"`
	PaidAmount        decimal.NullDecimal `gorm:"column:paid_amount;type:numeric(18,8)"`
	PaidCurrency      *string             `gorm:"column:paid_currency"`
	CreditsAmount     int64               `gorm:"column:credits_amount;not null"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'waiting'"`
	Credited          bool                `gorm:"column:credited;not null;default:false"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Purchase) TableName() string { return "purchases" }
