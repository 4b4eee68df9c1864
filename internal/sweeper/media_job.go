package sweeper

import (
	"context"
	"fmt"
)

const defaultMediaBatchSize = 200

type mediaSweeper interface {
	SweepExpired(ctx context.Context, batchSize int) (int, error)
}

// MediaJobParams configure the expired temp media sweep.
type MediaJobParams struct {
	Media     mediaSweeper
	BatchSize int
}

// NewMediaJob builds the job that removes expired temp media and their
// stored objects.
func NewMediaJob(params MediaJobParams) (Job, error) {
	if params.Media == nil {
		return nil, fmt.Errorf("media service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultMediaBatchSize
	}
	return &mediaJob{media: params.Media, batch: batch}, nil
}

type mediaJob struct {
	media mediaSweeper
	batch int
}

func (j *mediaJob) Name() string { return "expired-temp-media" }

func (j *mediaJob) Run(ctx context.Context) (int, error) {
	removed, err := j.media.SweepExpired(ctx, j.batch)
	if err != nil {
		return removed, fmt.Errorf("sweep expired media: %w", err)
	}
	return removed, nil
}
