package generation

import (
	"time"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/internal/media"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// GenerateRequest is the uniform payload for every operation kind.
type GenerateRequest struct {
	Operation      enums.OperationKind `json:"operation" validate:"required"`
	Prompt         string              `json:"prompt" validate:"required,max=4000"`
	NegativePrompt string              `json:"negative_prompt,omitempty" validate:"max=4000"`
	Width          int                 `json:"width,omitempty" validate:"omitempty,min=64,max=4096"`
	Height         int                 `json:"height,omitempty" validate:"omitempty,min=64,max=4096"`
	Steps          int                 `json:"steps,omitempty" validate:"omitempty,min=1,max=150"`
	Guidance       float64             `json:"guidance,omitempty" validate:"omitempty,min=0,max=30"`
	Seed           *int64              `json:"seed,omitempty"`
	InputImageURL  string              `json:"input_image_url,omitempty" validate:"omitempty,url"`
	DurationSec    int                 `json:"duration_sec,omitempty" validate:"omitempty,min=1,max=60"`
	IdempotencyKey string              `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

// GenerateResponse reports the settled outcome of a generation request. It
// is also the shape cached in the idempotency registry for replays.
type GenerateResponse struct {
	JobID     uuid.UUID           `json:"job_id"`
	Operation enums.OperationKind `json:"operation"`
	Status    enums.JobStatus     `json:"status"`
	Cost      int64               `json:"cost"`
	Balance   int64               `json:"balance"`
	Media     *media.MediaDTO     `json:"media,omitempty"`
	Replayed  bool                `json:"replayed,omitempty"`
}

// JobDTO is the transport shape for job history.
type JobDTO struct {
	ID            uuid.UUID            `json:"id"`
	Operation     enums.OperationKind  `json:"operation"`
	Family        enums.ProviderFamily `json:"provider_family"`
	Cost          int64                `json:"cost"`
	Status        enums.JobStatus      `json:"status"`
	ResultURL     *string              `json:"result_url,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	ResolvedAt    *time.Time           `json:"resolved_at,omitempty"`
}

// OperationDTO describes one catalog entry for the pricing endpoint.
type OperationDTO struct {
	Operation enums.OperationKind `json:"operation"`
	Cost      int64               `json:"cost"`
	Enabled   bool                `json:"enabled"`
}

func jobToDTO(job *models.GenerationJob) *JobDTO {
	return &JobDTO{
		ID:            job.ID,
		Operation:     job.OperationType,
		Family:        job.ProviderFamily,
		Cost:          job.Cost,
		Status:        job.Status,
		ResultURL:     job.ResultURL,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt,
		ResolvedAt:    job.ResolvedAt,
	}
}
