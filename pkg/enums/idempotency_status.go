package enums

// IdempotencyStatus tracks progress of a keyed operation.
type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "started"
	IdempotencyStatusSucceeded IdempotencyStatus = "succeeded"
	IdempotencyStatusFailed    IdempotencyStatus = "failed"
)

// IsValid reports whether the value matches the idempotency status enum.
func (s IdempotencyStatus) IsValid() bool {
	switch s {
	case IdempotencyStatusStarted, IdempotencyStatusSucceeded, IdempotencyStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the record can no longer change.
func (s IdempotencyStatus) Terminal() bool {
	return s == IdempotencyStatusSucceeded || s == IdempotencyStatusFailed
}
