package sweeper

import (
	"context"
	"fmt"
	"time"
)

const defaultIdempotencyTTL = 720 * time.Hour

type idempotencySweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyJobParams configure the idempotency record retention sweep.
type IdempotencyJobParams struct {
	Registry idempotencySweeper
	TTL      time.Duration
}

// NewIdempotencyJob builds the job that expires old idempotency records.
// Replays of keys older than the TTL become fresh requests.
func NewIdempotencyJob(params IdempotencyJobParams) (Job, error) {
	if params.Registry == nil {
		return nil, fmt.Errorf("idempotency registry required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &idempotencyJob{registry: params.Registry, ttl: ttl}, nil
}

type idempotencyJob struct {
	registry idempotencySweeper
	ttl      time.Duration
}

func (j *idempotencyJob) Name() string { return "idempotency-retention" }

func (j *idempotencyJob) Run(ctx context.Context) (int, error) {
	removed, err := j.registry.Sweep(ctx, j.ttl)
	if err != nil {
		return int(removed), fmt.Errorf("sweep idempotency records: %w", err)
	}
	return int(removed), nil
}
