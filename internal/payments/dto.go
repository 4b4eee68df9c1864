package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// webhookPayload is the settlement notification shape. Only the fields the
// reconciler acts on are decoded; the signature covers the full raw body.
type webhookPayload struct {
	InvoiceID     string              `json:"invoice_id"`
	PaymentID     string              `json:"payment_id"`
	PaymentStatus string              `json:"payment_status"`
	PayAmount     decimal.NullDecimal `json:"pay_amount"`
	PayCurrency   string              `json:"pay_currency"`
}

// PackDTO describes one purchasable credit package.
type PackDTO struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Credits  int64           `json:"credits"`
}

// PurchaseDTO is the transport shape for purchase records.
type PurchaseDTO struct {
	ID            uuid.UUID           `json:"id"`
	InvoiceID     string              `json:"invoice_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Credits       int64               `json:"credits"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Credited      bool                `json:"credited"`
	CreatedAt     time.Time           `json:"created_at"`
}

func purchaseToDTO(purchase *models.Purchase) *PurchaseDTO {
	return &PurchaseDTO{
		ID:            purchase.ID,
		InvoiceID:     purchase.ExternalInvoiceID,
		Amount:        purchase.Amount,
		Currency:      purchase.Currency,
		Credits:       purchase.CreditsAmount,
		PaymentStatus: purchase.PaymentStatus,
		Credited:      purchase.Credited,
		CreatedAt:     purchase.CreatedAt,
	}
}
