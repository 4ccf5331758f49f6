// Package kernels implements the four MAKER agent roles as pure
// Context-transforming operations: Decompose,
// DecompositionVote, Solve, SolutionVote, and ApplyVerify. Each kernel
// takes (Context, step_id) and returns a NextAction describing how the
// flow runner should proceed; kernels mutate the Context in place under
// the runner's single-writer discipline rather than returning
// a copy.
package kernels

import (
	"github.com/microfactory-run/microfactory/internal/fsys"
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/sampler"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// ActionKind names one member of the NextAction enum.
type ActionKind string

const (
	ActionContinue        ActionKind = "continue"
	ActionWaitForInput    ActionKind = "wait_for_input"
	ActionEnqueueChildren ActionKind = "enqueue_children"
	ActionDone            ActionKind = "done"
	ActionFailed          ActionKind = "failed"
	ActionGoTo            ActionKind = "goto"
)

// NextAction is the runner-facing result of one kernel invocation.
type NextAction struct {
	Kind     ActionKind
	Trigger  schema.WaitTrigger
	Details  string
	ChildIDs []string
	TargetID string
	Reason   string
}

// Deps bundles the ports and configuration one kernel invocation needs.
// The flow runner builds one Deps per domain and reuses it across steps.
type Deps struct {
	Domain   *schema.DomainConfig
	Renderer ports.PromptRenderer
	Sampler  *sampler.Sampler
	Flaggers map[schema.AgentKind]ports.RedFlagger
	FS            ports.FileSystem
	Verifier      *fsys.CommandVerifier
	APIKey        string
	WorkspaceRoot string

	// LowMarginThreshold pauses a vote kernel when its winning margin is
	// at or below this value.
	// Zero disables the pause.
	LowMarginThreshold int

	// DryRun makes ApplyVerify a no-op: decompose and vote still run, but
	// a winning step is marked Done without ever touching the workspace
	// or running the verifier.
	DryRun bool
}

// llmOptions resolves the model for one LLM call: a session-wide
// --llm-model override (sctx.Model) wins when set, otherwise the
// domain config's per-role model applies.
func llmOptions(cfg schema.AgentConfig, provider, model, apiKey string) ports.LlmOptions {
	if model == "" {
		model = cfg.Model
	}
	return ports.LlmOptions{Model: model, Provider: provider, APIKey: apiKey}
}

func toSchemaCandidates(annotated []schema.AnnotatedCandidate) []schema.Candidate {
	out := make([]schema.Candidate, 0, len(annotated))
	for _, a := range annotated {
		out = append(out, schema.NewCandidate(a.Text, a.Accepted, a.Reason))
	}
	return out
}

func recordSampling(sctx *schema.Context, stepID string, phase schema.Phase, res sampler.Result) {
	sctx.Metrics.Samples += len(res.Candidates)
	sctx.Metrics.RedFlags += res.RedFlags
	sctx.Metrics.Resamples += res.Resamples
	for _, c := range res.Candidates {
		sctx.AppendHistory(schema.HistoryEntry{
			StepID: stepID, Phase: phase, Preview: previewOf(c.Text), Accepted: c.Accepted, Reason: c.Reason,
		})
	}
}

func previewOf(s string) string {
	const max = 160
	if len(s) <= max {
		return s
	}
	return s[:max]
}
