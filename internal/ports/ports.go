// Package ports defines the outbound capability contracts (C1) through
// which the core reaches LLMs, storage, templating, the filesystem, the
// clock, and telemetry. Every adapter lives outside this package; the
// core depends only on these interfaces so that composition-root wiring
// and in-memory fakes for tests are interchangeable.
package ports

import "context"

// LlmErrorKind classifies an LlmClient failure so the ensemble sampler
// can decide whether to retry, resample, or fail the step.
type LlmErrorKind string

const (
	LlmErrAuth        LlmErrorKind = "auth"
	LlmErrRateLimited LlmErrorKind = "rate_limited"
	LlmErrTransport   LlmErrorKind = "transport"
	LlmErrProvider    LlmErrorKind = "provider"
	LlmErrCanceled    LlmErrorKind = "canceled"
)

// LlmError is the structured error returned by an LlmClient.
type LlmError struct {
	Kind    LlmErrorKind
	Code    string
	Message string
	Cause   error
}

func (e *LlmError) Error() string {
	if e.Code != "" {
		return string(e.Kind) + " (" + e.Code + "): " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *LlmError) Unwrap() error { return e.Cause }

// Retryable reports whether the sampler should retry the call
// or whether it is fatal to the step.
func (e *LlmError) Retryable() bool {
	return e.Kind == LlmErrTransport || e.Kind == LlmErrRateLimited
}

// LlmOptions configures a single completion request.
type LlmOptions struct {
	Model       string
	Provider    string
	Temperature float64
	MaxTokens   int
	APIKey      string
}

// LlmClient issues completion requests to a provider. Implementations
// must be safe for concurrent calls.
type LlmClient interface {
	Complete(ctx context.Context, opts LlmOptions, prompt string) (string, error)
}

// SessionSummary is the lightweight metadata attached to every persisted
// snapshot.
type SessionSummary struct {
	ID        string
	Status    string
	UpdatedAt int64
	Provider  string
	Model     string
	Domain    string
}

// SessionRepository persists opaque Context snapshots keyed by session
// ID. Writes must be atomic with respect to concurrent readers of the
// same ID.
type SessionRepository interface {
	Save(ctx context.Context, id string, snapshot []byte, summary SessionSummary) error
	Load(ctx context.Context, id string) ([]byte, SessionSummary, bool, error)
	List(ctx context.Context, limit int) ([]SessionSummary, error)
	Delete(ctx context.Context, id string) error
}

// PromptRenderer renders a named template against a structured data bag;
// missing keys render as empty strings.
type PromptRenderer interface {
	Render(templateName string, data map[string]any) (string, error)
}

// RedFlagger evaluates one candidate deterministically and purely.
// Chains of RedFlaggers form a pipeline run before a candidate ever
// reaches the voting engine.
type RedFlagger interface {
	Evaluate(candidate string) (flagged bool, reason string)
}

// StepAwareRedFlagger is implemented by RedFlaggers whose check can make
// use of the step id and decomposition depth the candidate came from
// (e.g. a CEL expression referencing `step`/`depth`). The ensemble
// sampler calls EvaluateStep instead of Evaluate when a flagger
// implements this.
type StepAwareRedFlagger interface {
	EvaluateStep(candidate, stepID string, depth int) (flagged bool, reason string)
}

// FileSystem reads and writes byte payloads at validated relative paths
// rooted in a configured workspace.
type FileSystem interface {
	WriteFile(relPath string, data []byte) error
	ReadFile(relPath string) ([]byte, error)
}

// Clock supplies timestamps used only for metrics, never for control
// flow decisions.
type Clock interface {
	NowMs() int64
}

// TelemetrySink records structured events; it never influences control
// flow.
type TelemetrySink interface {
	Record(ctx context.Context, name string, attrs map[string]any)
}
