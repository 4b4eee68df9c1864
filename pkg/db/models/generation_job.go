package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// GenerationJob tracks a charged generation request through the provider
// call. Created once the charge succeeds; the terminal status is set when
// the provider call resolves.
type GenerationJob struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	OperationType  enums.OperationKind  `gorm:"column:operation_type;type:text;not null"`
	ProviderFamily enums.ProviderFamily `gorm:"column:provider_family;type:text;not null"`
	Cost           int64                `gorm:"column:cost;not null"`
	Status         enums.JobStatus      `gorm:"column:status;type:text;not null;default:'pending'"`
	IdempotencyKey *string              `gorm:"column:idempotency_key"`
	ResultURL      *string              `gorm:"column:result_url"`
	FailureReason  *string              `gorm:"column:failure_reason"`
	Params         json.RawMessage      `gorm:"column:params;type:jsonb"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt     *time.Time           `gorm:"column:resolved_at"`
}

func (GenerationJob) TableName() string { return "generation_jobs" }
