package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/internal/idempotency"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/redis"
)

// Pack is a purchasable credit package. Prices are fixed server-side so a
// tampered client cannot buy credits below list price.
type Pack struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
	Credits  int64
}

var packs = []Pack{
	{ID: "starter", Amount: decimal.NewFromFloat(4.99), Currency: "usd", Credits: 5000},
	{ID: "creator", Amount: decimal.NewFromFloat(19.99), Currency: "usd", Credits: 25000},
	{ID: "studio", Amount: decimal.NewFromFloat(49.99), Currency: "usd", Credits: 70000},
}

// Service owns credit purchases and their webhook-driven settlement.
type Service interface {
	Packs() []PackDTO
	CreatePurchase(ctx context.Context, userID uuid.UUID, packID string) (*PurchaseDTO, error)
	Purchases(ctx context.Context, userID uuid.UUID, limit, offset int) ([]PurchaseDTO, error)
	HandleWebhook(ctx context.Context, signature string, rawBody []byte) error
}

type ServiceParams struct {
	Repo     Repository
	Tx       credits.TxRunner
	Credits  credits.Service
	Registry idempotency.Service
	// Guard is an optional Redis pre-filter for redelivered webhooks. The
	// credited flag in the database stays authoritative either way.
	Guard  redis.ReplayGuard
	Config config.PaymentsConfig
	Logger *logger.Logger
}

type service struct {
	repo     Repository
	tx       credits.TxRunner
	credits  credits.Service
	registry idempotency.Service
	guard    redis.ReplayGuard
	cfg      config.PaymentsConfig
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Credits == nil:
		return nil, fmt.Errorf("credits service required")
	case params.Registry == nil:
		return nil, fmt.Errorf("idempotency registry required")
	case params.Config.WebhookSecret == "":
		return nil, fmt.Errorf("webhook secret required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		credits:  params.Credits,
		registry: params.Registry,
		guard:    params.Guard,
		cfg:      params.Config,
		logg:     params.Logger,
	}, nil
}

func (s *service) Packs() []PackDTO {
	out := make([]PackDTO, 0, len(packs))
	for _, pack := range packs {
		out = append(out, PackDTO{ID: pack.ID, Amount: pack.Amount, Currency: pack.Currency, Credits: pack.Credits})
	}
	return out
}

func (s *service) CreatePurchase(ctx context.Context, userID uuid.UUID, packID string) (*PurchaseDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	pack, ok := packByID(packID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown credit pack %q", packID))
	}

	purchase, err := s.repo.Create(ctx, &models.Purchase{
		UserID:            userID,
		ExternalInvoiceID: "inv_" + uuid.NewString(),
		Amount:            pack.Amount,
		Currency:          pack.Currency,
		CreditsAmount:     pack.Credits,
		PaymentStatus:     enums.PaymentStatusWaiting,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create purchase")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"purchase_id": purchase.ID,
		"pack":        pack.ID,
		"credits":     pack.Credits,
	}), "purchase created")
	return purchaseToDTO(purchase), nil
}

func (s *service) Purchases(ctx context.Context, userID uuid.UUID, limit, offset int) ([]PurchaseDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	purchases, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list purchases")
	}
	dtos := make([]PurchaseDTO, 0, len(purchases))
	for i := range purchases {
		dtos = append(dtos, *purchaseToDTO(&purchases[i]))
	}
	return dtos, nil
}

// errAlreadyCredited aborts the settlement transaction when another
// delivery won the credited flip. The rollback discards the duplicate
// ledger credit.
var errAlreadyCredited = errors.New("purchase already credited")

// HandleWebhook reconciles one settlement notification. Every delivery
// persists the latest status for audit visibility; crediting happens at
// most once per purchase no matter how often the sender redelivers.
func (s *service) HandleWebhook(ctx context.Context, signature string, rawBody []byte) error {
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing webhook signature")
	}
	if err := VerifySignature(s.cfg.WebhookSecret, rawBody, signature); err != nil {
		return err
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	if payload.InvoiceID == "" && payload.PaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook payload carries no purchase identifier")
	}
	status := enums.NormalizePaymentStatus(payload.PaymentStatus)
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment status %q", payload.PaymentStatus))
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"invoice_id":     payload.InvoiceID,
		"payment_id":     payload.PaymentID,
		"payment_status": payload.PaymentStatus,
	})

	// Cheap pre-filter for exact redeliveries. Advisory only: a Redis
	// outage falls through to the database path.
	guardKey, duplicate := s.claimDelivery(ctx, payload, status)
	if duplicate {
		s.logg.Info(ctx, "webhook delivery already seen, skipping")
		return nil
	}

	err := s.reconcile(ctx, payload, status)
	if err != nil && guardKey != "" {
		// Release the guard so the sender's retry is not swallowed.
		if delErr := s.guard.Del(context.WithoutCancel(ctx), guardKey); delErr != nil {
			s.logg.Warn(ctx, "release webhook replay guard: "+delErr.Error())
		}
	}
	return err
}

// claimDelivery marks this (payment, status) delivery as seen. duplicate is
// true only when an identical delivery already holds the key; a guard error
// lets the delivery through.
func (s *service) claimDelivery(ctx context.Context, payload webhookPayload, status enums.PaymentStatus) (key string, duplicate bool) {
	if s.guard == nil || payload.PaymentID == "" {
		return "", false
	}
	key = s.guard.WebhookKey("payments", payload.PaymentID+":"+string(status))
	ok, err := s.guard.SetNX(ctx, key, 1, s.cfg.ReplayGuardTTL)
	if err != nil {
		s.logg.Warn(ctx, "webhook replay guard unavailable: "+err.Error())
		return key, false
	}
	return key, !ok
}

func (s *service) reconcile(ctx context.Context, payload webhookPayload, status enums.PaymentStatus) error {
	purchase, err := s.repo.FindByExternalID(ctx, payload.InvoiceID, payload.PaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Unsolicited webhooks never create purchases.
		return pkgerrors.New(pkgerrors.CodeNotFound, "no purchase matches this webhook")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase")
	}

	update := SettlementUpdate{PaymentStatus: status, PaidAmount: payload.PayAmount}
	if payload.PaymentID != "" {
		update.PaymentID = &payload.PaymentID
	}
	if payload.PayCurrency != "" {
		update.PaidCurrency = &payload.PayCurrency
	}
	if err := s.repo.UpdateSettlement(ctx, purchase.ID, update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment status")
	}

	if !status.Settled() || purchase.Credited {
		return nil
	}
	return s.settle(ctx, purchase, payload)
}

// settle credits the purchase exactly once. The registry key is the
// external payment id, so a redelivery racing a crash resumes safely; the
// credited flag flip and the ledger credit commit in one transaction.
func (s *service) settle(ctx context.Context, purchase *models.Purchase, payload webhookPayload) error {
	idemKey := "purchase:" + purchase.ExternalInvoiceID
	if payload.PaymentID != "" {
		idemKey = "purchase:" + payload.PaymentID
	}
	claim, err := s.registry.Begin(ctx, purchase.UserID, idemKey, string(enums.LedgerOperationPurchaseCredit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim settlement key")
	}
	if !claim.Acquired {
		switch claim.Record.Status {
		case enums.IdempotencyStatusStarted:
			// A concurrent delivery is mid-settlement; let the sender
			// retry after it finishes.
			return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "settlement already in progress")
		case enums.IdempotencyStatusSucceeded:
			s.logg.Info(ctx, "settlement already processed, skipping")
			return nil
		}
		// A failed record means an earlier delivery claimed the key but
		// the credit did not commit. The credited flag below decides
		// whether this retry actually moves money.
	}

	meta, _ := json.Marshal(map[string]string{
		"invoice_id": purchase.ExternalInvoiceID,
		"payment_id": payload.PaymentID,
	})
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).MarkCredited(ctx, purchase.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errAlreadyCredited
		}
		_, err = s.credits.CreditInTx(ctx, tx, credits.MutationInput{
			UserID:    purchase.UserID,
			Amount:    purchase.CreditsAmount,
			Operation: enums.LedgerOperationPurchaseCredit,
			Metadata:  meta,
		})
		return err
	})
	if errors.Is(err, errAlreadyCredited) {
		s.completeSettlement(ctx, claim.Record.ID, purchase, true)
		return nil
	}
	if err != nil {
		s.completeSettlementFailed(ctx, claim.Record.ID)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit purchase")
	}

	s.completeSettlement(ctx, claim.Record.ID, purchase, false)
	s.logg.Info(s.logg.WithField(ctx, "credits", purchase.CreditsAmount), "purchase credited")
	return nil
}

func (s *service) completeSettlement(ctx context.Context, recordID uuid.UUID, purchase *models.Purchase, duplicate bool) {
	cached, _ := json.Marshal(map[string]any{
		"purchase_id": purchase.ID,
		"credits":     purchase.CreditsAmount,
		"duplicate":   duplicate,
	})
	if err := s.registry.Complete(ctx, recordID, enums.IdempotencyStatusSucceeded, cached); err != nil {
		s.logg.Error(ctx, "complete settlement record", err)
	}
}

func (s *service) completeSettlementFailed(ctx context.Context, recordID uuid.UUID) {
	cached, _ := json.Marshal(map[string]string{
		"error_code": string(pkgerrors.CodeInternal),
		"message":    "crediting failed",
	})
	if err := s.registry.Complete(ctx, recordID, enums.IdempotencyStatusFailed, cached); err != nil {
		s.logg.Error(ctx, "complete settlement record", err)
	}
}

func packByID(id string) (Pack, bool) {
	for _, pack := range packs {
		if pack.ID == id {
			return pack, true
		}
	}
	return Pack{}, false
}
