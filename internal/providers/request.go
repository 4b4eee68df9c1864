package providers

import (
	"context"
	"time"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// Request carries the uniform generation fields every adapter understands.
// Adapters translate these into their provider's wire shape.
type Request struct {
	Kind           enums.OperationKind
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	Guidance       float64
	Seed           *int64
	InputImageURL  string
	DurationSec    int
}

// Result is the normalized successful outcome of a provider call.
type Result struct {
	MediaURL string
	MimeType string
}

// ModelConfig carries the per-model tuning the retrier and poller honor.
type ModelConfig struct {
	Model          string
	Endpoint       string
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	PollInterval   time.Duration
	PollAttempts   int
}

// Adapter is implemented once per provider family. Generate performs a
// single attempt with a single credential; rotation and retries live in the
// Retrier, never inside an adapter.
type Adapter interface {
	Family() enums.ProviderFamily
	Generate(ctx context.Context, req Request, model ModelConfig, cred Credential) (*Result, error)
}
