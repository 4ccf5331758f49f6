package sampler

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microfactory-run/microfactory/internal/engine"
	"github.com/microfactory-run/microfactory/internal/ports"
)

type stubClient struct {
	calls   int64
	respond func(n int64) (string, error)
}

func (c *stubClient) Complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	n := atomic.AddInt64(&c.calls, 1)
	return c.respond(n)
}

type alwaysAccept struct{}

func (alwaysAccept) Evaluate(candidate string) (bool, string) { return false, "" }

type flagPattern struct {
	flag map[string]bool
}

func (f flagPattern) Evaluate(candidate string) (bool, string) {
	if f.flag[candidate] {
		return true, "flagged"
	}
	return false, ""
}

func TestSample_CollectsNAccepted(t *testing.T) {
	client := &stubClient{respond: func(n int64) (string, error) { return "ok-" + strconv.FormatInt(n, 10), nil }}
	s := New(client, engine.NewWorkerPool(4))

	result, err := s.Sample(context.Background(), ports.LlmOptions{}, "prompt", 3, 0, alwaysAccept{}, "root", 0)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 3)
	assert.Equal(t, 0, result.RedFlags)
}

func TestSample_ResamplesPastFlagged(t *testing.T) {
	client := &stubClient{respond: func(n int64) (string, error) {
		if n == 1 {
			return "bad", nil
		}
		return "good-" + strconv.FormatInt(n, 10), nil
	}}
	s := New(client, engine.NewWorkerPool(4))

	result, err := s.Sample(context.Background(), ports.LlmOptions{}, "prompt", 1, 4, flagPattern{flag: map[string]bool{"bad": true}}, "root", 0)
	require.NoError(t, err)

	accepted := 0
	for _, c := range result.Candidates {
		if c.Accepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, result.RedFlags)
	assert.GreaterOrEqual(t, result.Resamples, 1)
}

func TestSample_AuthErrorIsFatal(t *testing.T) {
	client := &stubClient{respond: func(n int64) (string, error) {
		return "", &ports.LlmError{Kind: ports.LlmErrAuth, Message: "bad key"}
	}}
	s := New(client, engine.NewWorkerPool(2))

	_, err := s.Sample(context.Background(), ports.LlmOptions{}, "prompt", 2, 0, alwaysAccept{}, "root", 0)
	require.Error(t, err)
}

func TestSample_TransportErrorRetriesThenSucceeds(t *testing.T) {
	client := &stubClient{respond: func(n int64) (string, error) {
		if n <= 2 {
			return "", &ports.LlmError{Kind: ports.LlmErrTransport, Message: "flaky"}
		}
		return "recovered", nil
	}}
	s := New(client, engine.NewWorkerPool(1))
	s.backoff.Base = 0

	result, err := s.Sample(context.Background(), ports.LlmOptions{}, "prompt", 1, 0, alwaysAccept{}, "root", 0)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "recovered", result.Candidates[0].Text)
}

func TestSample_BudgetExhaustionReturnsPartial(t *testing.T) {
	client := &stubClient{respond: func(n int64) (string, error) { return "always-flagged", nil }}
	s := New(client, engine.NewWorkerPool(4))

	result, err := s.Sample(context.Background(), ports.LlmOptions{}, "prompt", 2, 2, flagPattern{flag: map[string]bool{"always-flagged": true}}, "root", 0)
	require.NoError(t, err)

	accepted := 0
	for _, c := range result.Candidates {
		if c.Accepted {
			accepted++
		}
	}
	assert.Less(t, accepted, 2)
}

type stepAwareFlagger struct {
	flagUnlessStep string
}

func (f stepAwareFlagger) Evaluate(candidate string) (bool, string) {
	return true, "no step context available"
}

func (f stepAwareFlagger) EvaluateStep(candidate, stepID string, depth int) (bool, string) {
	if stepID == f.flagUnlessStep {
		return false, ""
	}
	return true, "wrong step"
}

func TestSample_PassesStepIDAndDepthToStepAwareFlagger(t *testing.T) {
	client := &stubClient{respond: func(n int64) (string, error) { return "ok", nil }}
	s := New(client, engine.NewWorkerPool(2))

	result, err := s.Sample(context.Background(), ports.LlmOptions{}, "prompt", 1, 0, stepAwareFlagger{flagUnlessStep: "step-42"}, "step-42", 3)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.True(t, result.Candidates[0].Accepted)
}

func TestSample_CircuitBreakerOpensAfterRepeatedProviderFailures(t *testing.T) {
	client := &stubClient{respond: func(n int64) (string, error) {
		return "", &ports.LlmError{Kind: ports.LlmErrProvider, Message: "down"}
	}}
	s := New(client, engine.NewWorkerPool(1))

	opts := ports.LlmOptions{Provider: "openai"}
	for i := 0; i < engine.DefaultCircuitBreakerConfig().FailureThreshold; i++ {
		_, err := s.Sample(context.Background(), opts, "prompt", 1, 0, alwaysAccept{}, "root", 0)
		require.Error(t, err)
	}

	callsBeforeOpen := client.calls
	_, err := s.Sample(context.Background(), opts, "prompt", 1, 0, alwaysAccept{}, "root", 0)
	require.Error(t, err)
	assert.Equal(t, callsBeforeOpen, client.calls, "circuit should reject without reaching the client")
}
