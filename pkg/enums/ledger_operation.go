package enums

import "fmt"

// LedgerOperation describes the allowed values for the `operation_type`
// column in ledger_entries.
type LedgerOperation string

const (
	LedgerOperationGenerationCharge LedgerOperation = "generation_charge"
	LedgerOperationPurchaseCredit   LedgerOperation = "purchase_credit"
	LedgerOperationSignupBonus      LedgerOperation = "signup_bonus"
	LedgerOperationAdminGrant       LedgerOperation = "admin_grant"
	LedgerOperationRefund           LedgerOperation = "refund"
)

var validLedgerOperations = []LedgerOperation{
	LedgerOperationGenerationCharge,
	LedgerOperationPurchaseCredit,
	LedgerOperationSignupBonus,
	LedgerOperationAdminGrant,
	LedgerOperationRefund,
}

// IsValid reports whether the value matches the canonical ledger operation enum.
func (l LedgerOperation) IsValid() bool {
	for _, candidate := range validLedgerOperations {
		if candidate == l {
			return true
		}
	}
	return false
}

// IsDebit reports whether entries of this operation carry a negative delta.
func (l LedgerOperation) IsDebit() bool {
	return l == LedgerOperationGenerationCharge
}

// ParseLedgerOperation converts the raw string to LedgerOperation.
func ParseLedgerOperation(value string) (LedgerOperation, error) {
	for _, candidate := range validLedgerOperations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger operation %q", value)
}
