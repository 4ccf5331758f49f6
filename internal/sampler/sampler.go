// Package sampler implements the ensemble sampler: bounded
// concurrency fan-out against the LlmClient port, a resample-on-flag
// loop bounded by a budget, and bounded exponential backoff for
// transient provider errors, using internal/engine.WorkerPool for the
// concurrency bound, internal/engine.ComputeBackoff/IsRetryableError for
// retry policy, and internal/engine.CircuitBreakerRegistry to stop
// hammering a provider that is failing outright.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/microfactory-run/microfactory/internal/engine"
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// DefaultBudgetMultiplier is the default upper bound of 2n extra calls.
const DefaultBudgetMultiplier = 2

// Result is everything the sampler observed during one ensemble call:
// every raw sample (accepted or flagged) plus the counters the flow
// runner folds into Context.Metrics and the pause-trigger checks.
type Result struct {
	Candidates []schema.AnnotatedCandidate
	RedFlags   int
	Resamples  int
}

// Sampler issues concurrent completion requests against a single
// process-wide permit pool.
type Sampler struct {
	client   ports.LlmClient
	pool     *engine.WorkerPool
	backoff  engine.BackoffPolicy
	breakers *engine.CircuitBreakerRegistry
}

// New builds a Sampler. pool must be shared across every concurrently
// running session for the process-wide concurrency bound to hold.
func New(client ports.LlmClient, pool *engine.WorkerPool) *Sampler {
	return &Sampler{
		client:   client,
		pool:     pool,
		backoff:  engine.DefaultBackoffPolicy,
		breakers: engine.NewCircuitBreakerRegistry(engine.DefaultCircuitBreakerConfig()),
	}
}

// Sample fans out up to n accepted calls, resampling past red-flagged
// responses until budget is exhausted. budget<=0 selects the default of
// 2n extra calls. A failed call is fatal to the step: it returns an
// Auth-coded MicrofactoryError for an auth failure, a Cancelled-coded one
// when the call is cancelled, and a Provider-coded one for a provider error or
// exhausted retries. stepID and
// depth are forwarded to flagger when it implements StepAwareRedFlagger,
// so CEL expression checks see the real step context instead of the
// empty placeholder a step-agnostic flagger gets by default.
func (s *Sampler) Sample(ctx context.Context, opts ports.LlmOptions, prompt string, n, budget int, flagger ports.RedFlagger, stepID string, depth int) (Result, error) {
	if n <= 0 {
		n = 1
	}
	if budget <= 0 {
		budget = DefaultBudgetMultiplier * n
	}

	var (
		mu       sync.Mutex
		result   Result
		accepted int
		issued   int
	)

	for accepted < n && issued < n+budget {
		remaining := n - accepted
		if remaining > n+budget-issued {
			remaining = n + budget - issued
		}

		var wg sync.WaitGroup
		fatalErr := make(chan error, remaining)

		for i := 0; i < remaining; i++ {
			wg.Add(1)
			issued++
			submitErr := s.pool.Submit(ctx, func(ctx context.Context) error {
				defer wg.Done()
				text, err := s.callWithRetry(ctx, opts, prompt)
				if err != nil {
					select {
					case fatalErr <- err:
					default:
					}
					return err
				}

				flagged, reason := false, ""
				if flagger != nil {
					if stepAware, ok := flagger.(ports.StepAwareRedFlagger); ok {
						flagged, reason = stepAware.EvaluateStep(text, stepID, depth)
					} else {
						flagged, reason = flagger.Evaluate(text)
					}
				}

				mu.Lock()
				result.Candidates = append(result.Candidates, schema.AnnotatedCandidate{
					Text: text, Accepted: !flagged, Reason: reason,
				})
				if flagged {
					result.RedFlags++
				} else {
					accepted++
				}
				mu.Unlock()
				return nil
			})
			if submitErr != nil {
				wg.Done()
				return result, schema.NewErrorf(schema.ErrCodeProvider, "sampler: submit failed: %v", submitErr).WithCause(submitErr)
			}
		}

		wg.Wait()

		select {
		case err := <-fatalErr:
			return result, err
		default:
		}

		if accepted < n {
			result.Resamples++
		}
	}

	return result, nil
}

// callWithRetry issues one completion request, retrying Transport and
// RateLimited failures with bounded exponential backoff. Auth and
// Provider failures count against opts.Provider's circuit breaker, which
// short-circuits further attempts once a provider trips.
func (s *Sampler) callWithRetry(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	if err := s.breakers.AllowRequest(opts.Provider); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= s.backoff.MaxTries; attempt++ {
		if attempt > 0 {
			delay := engine.ComputeBackoff(s.backoff, attempt-1)
			select {
			case <-ctx.Done():
				return "", schema.NewErrorf(schema.ErrCodeCancelled, "sampler: %v", ctx.Err()).WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		text, err := s.client.Complete(ctx, opts, prompt)
		if err == nil {
			s.breakers.RecordSuccess(opts.Provider)
			return text, nil
		}
		lastErr = err

		var llmErr *ports.LlmError
		if !errors.As(err, &llmErr) {
			if engine.IsRetryableError(err) {
				continue // retry
			}
			s.breakers.RecordFailure(opts.Provider)
			return "", schema.NewErrorf(schema.ErrCodeProvider, "sampler: %v", err).WithCause(err)
		}
		switch llmErr.Kind {
		case ports.LlmErrAuth:
			s.breakers.RecordFailure(opts.Provider)
			return "", schema.NewErrorf(schema.ErrCodeAuth, "sampler: %v", llmErr).WithCause(llmErr)
		case ports.LlmErrCanceled:
			return "", schema.NewErrorf(schema.ErrCodeCancelled, "sampler: %v", llmErr).WithCause(llmErr)
		case ports.LlmErrProvider:
			s.breakers.RecordFailure(opts.Provider)
			return "", schema.NewErrorf(schema.ErrCodeProvider, "sampler: %v", llmErr).WithCause(llmErr)
		case ports.LlmErrTransport, ports.LlmErrRateLimited:
			continue // retry
		default:
			s.breakers.RecordFailure(opts.Provider)
			return "", schema.NewErrorf(schema.ErrCodeProvider, "sampler: %v", llmErr).WithCause(llmErr)
		}
	}
	s.breakers.RecordFailure(opts.Provider)
	return "", schema.NewErrorf(schema.ErrCodeProvider, "sampler: retries exhausted: %v", lastErr).WithCause(lastErr)
}
