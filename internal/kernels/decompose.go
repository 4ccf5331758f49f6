package kernels

import (
	"context"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// Decompose implements DecompositionTask: renders the
// decomposition template, samples the decomposition agent, and stores
// candidates on the step pending a vote.
func Decompose(ctx context.Context, d Deps, sctx *schema.Context, stepID string) (NextAction, error) {
	step, ok := sctx.Steps[stepID]
	if !ok {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "decompose: unknown step %q", stepID).WithSession(sctx.SessionID)
	}

	cfg, ok := d.Domain.Agents[schema.AgentDecomposition]
	if !ok {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "domain %q has no decomposition agent configured", d.Domain.Name).WithStep(stepID)
	}

	prompt, err := d.Renderer.Render(cfg.PromptTemplate, map[string]any{
		"prompt":       sctx.Prompt,
		"description":  step.Description,
		"depth":        step.Depth,
		"domain_hints": d.Domain.Name,
	})
	if err != nil {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "decompose: render template: %v", err).WithCause(err).WithStep(stepID)
	}

	step.Status = schema.StepDecomposing

	result, err := d.Sampler.Sample(ctx, llmOptions(cfg, sctx.Provider, sctx.Model, d.APIKey), prompt, cfg.Samples, 0, d.Flaggers[schema.AgentDecomposition], stepID, step.Depth)
	if err != nil {
		step.Status = schema.StepFailed
		return NextAction{Kind: ActionFailed, Reason: err.Error()}, nil
	}

	recordSampling(sctx, stepID, schema.PhaseDecompose, result)
	step.Candidates = toSchemaCandidates(result.Candidates)
	step.Status = schema.StepAwaitingDecompositionVote

	return NextAction{Kind: ActionContinue}, nil
}
