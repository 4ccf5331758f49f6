package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/microfactory-run/microfactory/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError_Nil(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
}

func TestIsRetryableError_ContextCanceled(t *testing.T) {
	assert.False(t, IsRetryableError(context.Canceled))
}

func TestIsRetryableError_ContextDeadlineExceeded(t *testing.T) {
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
}

func TestIsRetryableError_MicrofactoryError_Retryable(t *testing.T) {
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeTransport, "dial failed")))
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeRateLimited, "429")))
}

func TestIsRetryableError_MicrofactoryError_NonRetryable(t *testing.T) {
	nonRetryableCodes := []string{
		schema.ErrCodeAuth,
		schema.ErrCodeProvider,
		schema.ErrCodeValidation,
		schema.ErrCodeNotFound,
		schema.ErrCodeConflict,
		schema.ErrCodeInvalidTransition,
		schema.ErrCodeConfig,
	}
	for _, code := range nonRetryableCodes {
		err := schema.NewError(code, "test")
		assert.False(t, IsRetryableError(err), "expected %s to be non-retryable", code)
	}
}

func TestIsRetryableError_PlainError_DefaultNonRetryable(t *testing.T) {
	// Unclassified errors are treated conservatively: not retried unless
	// they match a known network pattern or typed retryable kind.
	err := errors.New("something went wrong")
	assert.False(t, IsRetryableError(err))
}

func TestIsRetryableError_NetworkPatterns(t *testing.T) {
	patterns := []string{
		"connection refused",
		"connection reset by peer",
		"broken pipe",
		"unexpected EOF",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"internal server error",
	}
	for _, p := range patterns {
		err := errors.New(p)
		assert.True(t, IsRetryableError(err), "expected %q to be retryable", p)
	}
}

func TestComputeBackoff_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), ComputeBackoff(BackoffPolicy{}, 0))
}

func TestComputeBackoff_Exponential(t *testing.T) {
	policy := BackoffPolicy{Base: 10 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 10*time.Millisecond, ComputeBackoff(policy, 0))
	assert.Equal(t, 20*time.Millisecond, ComputeBackoff(policy, 1))
	assert.Equal(t, 40*time.Millisecond, ComputeBackoff(policy, 2))
	assert.Equal(t, 80*time.Millisecond, ComputeBackoff(policy, 3))
}

func TestComputeBackoff_MaxDelayCap(t *testing.T) {
	policy := BackoffPolicy{Base: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, ComputeBackoff(policy, 0))
	assert.Equal(t, 20*time.Millisecond, ComputeBackoff(policy, 1))
	assert.Equal(t, 40*time.Millisecond, ComputeBackoff(policy, 2))
	assert.Equal(t, 50*time.Millisecond, ComputeBackoff(policy, 3))
	assert.Equal(t, 50*time.Millisecond, ComputeBackoff(policy, 4))
}

func TestWaitForBackoff_ZeroDelay(t *testing.T) {
	assert.NoError(t, WaitForBackoff(context.Background(), 0))
}

func TestWaitForBackoff_NegativeDelay(t *testing.T) {
	assert.NoError(t, WaitForBackoff(context.Background(), -1))
}

func TestWaitForBackoff_Waits(t *testing.T) {
	start := time.Now()
	err := WaitForBackoff(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestWaitForBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := WaitForBackoff(ctx, 5*time.Second)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Less(t, elapsed, time.Second)
}
