package providers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StatusFunc fetches the current raw status payload of an async job.
type StatusFunc func(ctx context.Context) (map[string]any, error)

// Poller watches an async job at a fixed interval until it reaches a
// terminal state or the attempt budget runs out.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPoller(interval time.Duration, maxAttempts int) *Poller {
	return &Poller{Interval: interval, MaxAttempts: maxAttempts, sleep: sleepCtx}
}

// Poll fetches the job status up to MaxAttempts times. A job that reports
// success must also carry a result URL; success without a payload is a
// provider contract violation and is terminal, since polling again would
// see the same response.
func (p *Poller) Poll(ctx context.Context, fetch StatusFunc) (*Result, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := p.sleepFn()(ctx, p.Interval); err != nil {
				return nil, classifyTransport(err)
			}
		}

		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		switch normalizeJobStatus(payload) {
		case jobDone:
			url, ok := ExtractResultURL(payload)
			if !ok {
				return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: "job reported success without a result URL"}
			}
			return &Result{MediaURL: url}, nil
		case jobFailed:
			// The job itself failed; resubmitting the same request through
			// another credential would fail the same way.
			return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: failureDetail(payload)}
		}
	}

	return nil, &Failure{
		Kind:      FailureTimeout,
		Retryable: true,
		Detail:    fmt.Sprintf("job still pending after %d polls", attempts),
	}
}

func (p *Poller) sleepFn() func(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep
	}
	return sleepCtx
}

type jobState int

const (
	jobPending jobState = iota
	jobDone
	jobFailed
)

// normalizeJobStatus folds the status vocabulary providers use into three
// states. The field may be named status or state; unknown values count as
// still pending. A payload carrying an error field is failed no matter
// what the status says.
func normalizeJobStatus(payload map[string]any) jobState {
	raw := ""
	for _, key := range []string{"status", "state"} {
		if s, ok := lookupPath(payload, key); ok {
			raw = s
			break
		}
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "finished", "succeeded", "success", "done":
		return jobDone
	case "failed", "failure", "error", "canceled", "cancelled":
		return jobFailed
	}
	for _, key := range []string{"error", "error.message"} {
		if s, ok := lookupPath(payload, key); ok && strings.TrimSpace(s) != "" {
			return jobFailed
		}
	}
	return jobPending
}

func failureDetail(payload map[string]any) string {
	for _, key := range []string{"error", "message", "detail", "error.message"} {
		if s, ok := lookupPath(payload, key); ok && s != "" {
			return truncateDetail(s)
		}
	}
	return "job reported failure"
}
