package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only path that mutates user balances. Every mutation
// writes its ledger entry in the same transaction, so the running sum of
// deltas always equals the stored balance.
type Service interface {
	Charge(ctx context.Context, input MutationInput) (*models.LedgerEntry, error)
	Credit(ctx context.Context, input MutationInput) (*models.LedgerEntry, error)
	// CreditInTx records a credit inside a caller-owned transaction so the
	// credit commits or rolls back together with the caller's own writes.
	CreditInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.LedgerEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Entries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
	Audit(ctx context.Context, userID uuid.UUID) (AuditReport, error)
}

// MutationInput captures one balance mutation. Amount is always positive;
// Charge subtracts it and Credit adds it.
type MutationInput struct {
	UserID    uuid.UUID
	Amount    int64
	Operation enums.LedgerOperation
	Metadata  json.RawMessage
}

// AuditReport compares the stored balance against the ledger sum.
type AuditReport struct {
	Balance    int64 `json:"balance"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

type service struct {
	repo Repository
	tx   TxRunner
	logg *logger.Logger
}

func NewService(repo Repository, tx TxRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("credits tx runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("credits logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) Charge(ctx context.Context, input MutationInput) (*models.LedgerEntry, error) {
	if err := validateMutation(input, true); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		rows, err := repo.DebitBalance(ctx, input.UserID, input.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit balance")
		}
		if rows == 0 {
			return s.classifyDebitMiss(ctx, repo, input)
		}

		balance, err := repo.Balance(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read balance after debit")
		}
		entry = &models.LedgerEntry{
			UserID:        input.UserID,
			Delta:         -input.Amount,
			OperationType: input.Operation,
			BalanceAfter:  balance,
			Metadata:      input.Metadata,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record ledger entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":   input.UserID,
		"operation": input.Operation,
		"delta":     -input.Amount,
		"balance":   entry.BalanceAfter,
	}), "credits charged")
	return entry, nil
}

// classifyDebitMiss runs after the conditional debit matched no row. A
// missing user, a short balance, and a concurrent debit all land here; the
// re-read tells them apart. A covering balance means another transaction
// won the race, which callers may retry.
func (s *service) classifyDebitMiss(ctx context.Context, repo Repository, input MutationInput) error {
	balance, err := repo.Balance(ctx, input.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read balance")
	}
	if balance >= input.Amount {
		return pkgerrors.New(pkgerrors.CodeBalanceContention, "balance changed concurrently, retry the request")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits").
		WithDetails(map[string]any{"balance": balance, "required": input.Amount})
}

func (s *service) Credit(ctx context.Context, input MutationInput) (*models.LedgerEntry, error) {
	if err := validateMutation(input, false); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.creditWithRepo(ctx, s.repo.WithTx(tx), input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) CreditInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit requires an open transaction")
	}
	if err := validateMutation(input, false); err != nil {
		return nil, err
	}
	return s.creditWithRepo(ctx, s.repo.WithTx(tx), input)
}

func (s *service) creditWithRepo(ctx context.Context, repo Repository, input MutationInput) (*models.LedgerEntry, error) {
	if err := repo.CreditBalance(ctx, input.UserID, input.Amount); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit balance")
	}
	balance, err := repo.Balance(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read balance after credit")
	}
	entry := &models.LedgerEntry{
		UserID:        input.UserID,
		Delta:         input.Amount,
		OperationType: input.Operation,
		BalanceAfter:  balance,
		Metadata:      input.Metadata,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record ledger entry")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":   input.UserID,
		"operation": input.Operation,
		"delta":     input.Amount,
		"balance":   balance,
	}), "credits granted")
	return entry, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	balance, err := s.repo.Balance(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read balance")
	}
	return balance, nil
}

func (s *service) Entries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.repo.ListEntries(ctx, userID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) Audit(ctx context.Context, userID uuid.UUID) (AuditReport, error) {
	if userID == uuid.Nil {
		return AuditReport{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return AuditReport{}, err
	}
	sum, err := s.repo.SumDeltas(ctx, userID)
	if err != nil {
		return AuditReport{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum ledger deltas")
	}
	report := AuditReport{Balance: balance, LedgerSum: sum, Consistent: balance == sum}
	if !report.Consistent {
		s.logg.Error(s.logg.WithUserID(ctx, userID.String()), "ledger sum does not match balance", nil)
	}
	return report, nil
}

func validateMutation(input MutationInput, debit bool) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Operation.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger operation %q", input.Operation))
	}
	if debit != input.Operation.IsDebit() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("ledger operation %q does not match mutation direction", input.Operation))
	}
	return nil
}
