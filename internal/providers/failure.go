package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind classifies a provider attempt failure. The kind decides
// retryability and which user-facing error the orchestrator surfaces; the
// Detail field stays in server logs only.
type FailureKind string

const (
	FailureQuota    FailureKind = "quota"
	FailureProvider FailureKind = "provider"
	FailureTimeout  FailureKind = "timeout"
	FailureNetwork  FailureKind = "network"
)

// Failure is the normalized error for a single provider attempt.
type Failure struct {
	Kind      FailureKind
	Retryable bool
	Status    int
	Detail    string
}

func (f *Failure) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("provider %s (status %d): %s", f.Kind, f.Status, f.Detail)
	}
	return fmt.Sprintf("provider %s: %s", f.Kind, f.Detail)
}

// AsFailure unwraps err into a *Failure when one is present.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// RetryableError reports whether err is a provider failure the retrier may
// rotate credentials for. Anything that is not a Failure is terminal.
func RetryableError(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.Retryable
}

// classifyStatus maps a non-2xx provider response to a Failure. Quota and
// auth rejections are retryable because the next credential may be clean;
// 4xx request errors are terminal since every credential would fail the
// same way.
func classifyStatus(status int, body string) *Failure {
	detail := truncateDetail(body)
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusPaymentRequired:
		return &Failure{Kind: FailureQuota, Retryable: true, Status: status, Detail: detail}
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return &Failure{Kind: FailureTimeout, Retryable: true, Status: status, Detail: detail}
	case status >= 500:
		return &Failure{Kind: FailureProvider, Retryable: true, Status: status, Detail: detail}
	default:
		return &Failure{Kind: FailureProvider, Retryable: false, Status: status, Detail: detail}
	}
}

// classifyTransport maps a transport-level error (dial, TLS, deadline) to a
// Failure. Deadline expiry counts as a timeout, everything else as network.
func classifyTransport(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Retryable: true, Detail: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: FailureTimeout, Retryable: true, Detail: err.Error()}
	}
	return &Failure{Kind: FailureNetwork, Retryable: true, Detail: err.Error()}
}

func truncateDetail(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max]
	}
	return s
}
