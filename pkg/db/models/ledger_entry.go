package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// LedgerEntry records an immutable balance mutation. Rows are append-only:
// for any user the running sum of Delta must equal the current balance, and
// BalanceAfter snapshots the balance the mutation produced.
type LedgerEntry struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Delta         int64                 `gorm:"column:delta;not null"`
	OperationType enums.LedgerOperation `gorm:"column:operation_type;type:text;not null"`
	BalanceAfter  int64                 `gorm:"column:balance_after;not null"`
	Metadata      json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
