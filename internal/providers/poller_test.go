package providers

import (
	"context"
	"testing"
	"time"
)

func immediatePoller(maxAttempts int) (*Poller, *int) {
	p := NewPoller(2*time.Second, maxAttempts)
	sleeps := 0
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}
	return p, &sleeps
}

func TestPollerReturnsResultOnCompletion(t *testing.T) {
	p, _ := immediatePoller(10)

	calls := 0
	res, err := p.Poll(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		if calls < 3 {
			return map[string]any{"status": "processing"}, nil
		}
		return map[string]any{"status": "completed", "output": map[string]any{"url": "https://cdn/done.png"}}, nil
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.MediaURL != "https://cdn/done.png" {
		t.Fatalf("unexpected url %q", res.MediaURL)
	}
	if calls != 3 {
		t.Fatalf("expected 3 fetches got %d", calls)
	}
}

func TestPollerNormalizesStatusSynonyms(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		done    bool
		failed  bool
	}{
		{"finished", map[string]any{"status": "finished", "url": "https://cdn/x"}, true, false},
		{"succeeded", map[string]any{"status": "SUCCEEDED", "url": "https://cdn/x"}, true, false},
		{"state field", map[string]any{"state": "success", "url": "https://cdn/x"}, true, false},
		{"error", map[string]any{"status": "error", "error": "boom"}, false, true},
		{"canceled", map[string]any{"state": "canceled"}, false, true},
		{"unknown is pending", map[string]any{"status": "warming_up"}, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := immediatePoller(1)
			res, err := p.Poll(context.Background(), func(ctx context.Context) (map[string]any, error) {
				return tc.payload, nil
			})
			switch {
			case tc.done:
				if err != nil {
					t.Fatalf("expected completion, got %v", err)
				}
				if res.MediaURL == "" {
					t.Fatal("expected result URL")
				}
			case tc.failed:
				f, ok := AsFailure(err)
				if !ok || f.Kind != FailureProvider || f.Retryable {
					t.Fatalf("expected terminal provider failure, got %v", err)
				}
			default:
				f, ok := AsFailure(err)
				if !ok || f.Kind != FailureTimeout {
					t.Fatalf("expected timeout after budget, got %v", err)
				}
			}
		})
	}
}

func TestPollerStopsAfterMaxAttempts(t *testing.T) {
	p, sleeps := immediatePoller(5)

	calls := 0
	_, err := p.Poll(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"status": "pending"}, nil
	})
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureTimeout || !f.Retryable {
		t.Fatalf("expected retryable timeout, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected exactly 5 polls got %d", calls)
	}
	if *sleeps != 4 {
		t.Fatalf("expected 4 waits between polls got %d", *sleeps)
	}
}

func TestPollerSuccessWithoutURLIsTerminal(t *testing.T) {
	p, _ := immediatePoller(10)

	calls := 0
	_, err := p.Poll(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"status": "done"}, nil
	})
	f, ok := AsFailure(err)
	if !ok || f.Retryable {
		t.Fatalf("expected terminal failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("success without payload must not be re-polled, got %d calls", calls)
	}
}

func TestPollerFailedJobIsTerminal(t *testing.T) {
	p, _ := immediatePoller(10)

	calls := 0
	_, err := p.Poll(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"status": "failed", "error": "bad seed"}, nil
	})
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureProvider {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if f.Retryable {
		t.Fatal("a failed job must not be resubmitted through other credentials")
	}
	if calls != 1 {
		t.Fatalf("failed job must not be re-polled, got %d calls", calls)
	}
}

func TestPollerBareErrorFieldStopsPolling(t *testing.T) {
	p, _ := immediatePoller(4)

	calls := 0
	_, err := p.Poll(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"error": "model exploded"}, nil
	})
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureProvider || f.Retryable {
		t.Fatalf("expected terminal provider failure, got %v", err)
	}
	if f.Detail != "model exploded" {
		t.Fatalf("detail = %q, want the provider's error text", f.Detail)
	}
	if calls != 1 {
		t.Fatalf("expected polling to stop on the first error payload, got %d calls", calls)
	}
}

func TestPollerPropagatesFetchErrors(t *testing.T) {
	p, _ := immediatePoller(10)

	want := &Failure{Kind: FailureQuota, Retryable: true, Status: 429}
	_, err := p.Poll(context.Background(), func(ctx context.Context) (map[string]any, error) {
		return nil, want
	})
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureQuota {
		t.Fatalf("expected quota failure, got %v", err)
	}
}
