package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/metrics"
)

// AttemptFunc performs a single generation attempt with one credential.
type AttemptFunc func(ctx context.Context, cred Credential) (*Result, error)

// Retrier drives credential rotation and retry rounds for one family.
// Rotation takes priority over waiting: on a retryable failure the next
// credential is tried immediately, and only once every credential in the
// family has failed does the retrier sleep RetryDelay and start another
// round, up to MaxRetries extra rounds. Terminal failures abort at once.
type Retrier struct {
	pool       *Pool
	family     enums.ProviderFamily
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	logg       *logger.Logger
	metrics    *metrics.GenerationMetrics

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(pool *Pool, family enums.ProviderFamily, model ModelConfig, logg *logger.Logger, m *metrics.GenerationMetrics) *Retrier {
	return &Retrier{
		pool:       pool,
		family:     family,
		maxRetries: model.MaxRetries,
		retryDelay: model.RetryDelay,
		timeout:    model.AttemptTimeout,
		logg:       logg,
		metrics:    m,
		sleep:      sleepCtx,
	}
}

// Execute runs attempt until it succeeds, a terminal failure occurs, the
// context is canceled, or every credential has failed across all rounds.
// The last attempt's error is returned on exhaustion.
func (r *Retrier) Execute(ctx context.Context, attempt AttemptFunc) (*Result, error) {
	if r.pool.Size(r.family) == 0 {
		return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: fmt.Sprintf("no credentials for family %s", r.family)}
	}

	var lastErr error
	credIndex := -1
	round := 0

	for {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, classifyTransport(err)
		}

		cred, err := r.pool.Next(r.family, credIndex)
		if err == ErrExhausted {
			if round >= r.maxRetries {
				return nil, lastErr
			}
			round++
			r.metrics.IncRetry(string(r.family), "round_exhausted")
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"round": round,
				"delay": r.retryDelay.String(),
			}), "all credentials failed, backing off before next round")
			if err := r.sleep(ctx, r.retryDelay); err != nil {
				return nil, lastErr
			}
			credIndex = -1
			continue
		}
		credIndex = cred.Index

		res, attemptErr := r.runAttempt(ctx, attempt, cred)
		if attemptErr == nil {
			return res, nil
		}
		lastErr = attemptErr

		if !RetryableError(attemptErr) {
			return nil, attemptErr
		}
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"credential_index": cred.Index,
			"cause":            attemptErr.Error(),
		}), "provider attempt failed, rotating credential")
	}
}

func (r *Retrier) runAttempt(ctx context.Context, attempt AttemptFunc, cred Credential) (*Result, error) {
	attemptCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	res, err := attempt(attemptCtx, cred)
	if err != nil {
		if _, ok := AsFailure(err); ok {
			return nil, err
		}
		return nil, classifyTransport(err)
	}
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
