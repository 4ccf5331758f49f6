package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// IsRetryableError classifies whether an error from an LLM call should be
// retried by the ensemble sampler. Retryable: Transport/RateLimited
// MicrofactoryErrors, network errors, timeouts. Non-retryable: Auth and
// Provider errors are fatal to the step.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var mfErr *schema.MicrofactoryError
	if errors.As(err, &mfErr) {
		return mfErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"internal server error",
		"too many requests",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// BackoffPolicy configures the sampler's bounded exponential backoff for
// Transport/RateLimited retries.
type BackoffPolicy struct {
	Base     time.Duration
	MaxDelay time.Duration
	MaxTries int
}

// DefaultBackoffPolicy is a small bounded retry budget for transient errors.
var DefaultBackoffPolicy = BackoffPolicy{Base: 200 * time.Millisecond, MaxDelay: 5 * time.Second, MaxTries: 3}

// ComputeBackoff returns the exponential delay for the given zero-based
// attempt number, capped at policy.MaxDelay.
func ComputeBackoff(policy BackoffPolicy, attempt int) time.Duration {
	if policy.Base <= 0 {
		return 0
	}
	multiplier := time.Duration(1)
	for i := 0; i < attempt; i++ {
		multiplier *= 2
	}
	delay := policy.Base * multiplier
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// WaitForBackoff sleeps for delay or returns early if ctx is cancelled.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
