package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// IdempotencyKey maps a caller-supplied key to the outcome of a keyed
// operation. The (user_id, key) pair is unique; concurrent inserts race
// safely on the constraint and exactly one caller wins the begin.
type IdempotencyKey struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID               `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_idempotency_user_key"`
	Key          string                  `gorm:"column:key;not null;uniqueIndex:idx_idempotency_user_key"`
	Operation    string                  `gorm:"column:operation;not null"`
	Status       enums.IdempotencyStatus `gorm:"column:status;type:text;not null;default:'started'"`
	CachedResult json.RawMessage         `gorm:"column:cached_result;type:jsonb"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	CompletedAt  *time.Time              `gorm:"column:completed_at"`
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }
