package kernels

import (
	"context"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// Solve implements SolveTask: reached once a step is
// atomic under the granularity policy. Renders the solver template and
// samples the solver agent.
func Solve(ctx context.Context, d Deps, sctx *schema.Context, stepID string) (NextAction, error) {
	step, ok := sctx.Steps[stepID]
	if !ok {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "solve: unknown step %q", stepID).WithSession(sctx.SessionID)
	}

	cfg, ok := d.Domain.Agents[schema.AgentSolver]
	if !ok {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "domain %q has no solver agent configured", d.Domain.Name).WithStep(stepID)
	}

	prompt, err := d.Renderer.Render(cfg.PromptTemplate, map[string]any{
		"prompt":          sctx.Prompt,
		"description":     step.Description,
		"context_snippet": contextSnippet(sctx, step),
	})
	if err != nil {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "solve: render template: %v", err).WithCause(err).WithStep(stepID)
	}

	step.Status = schema.StepSolving

	result, err := d.Sampler.Sample(ctx, llmOptions(cfg, sctx.Provider, sctx.Model, d.APIKey), prompt, cfg.Samples, 0, d.Flaggers[schema.AgentSolver], stepID, step.Depth)
	if err != nil {
		step.Status = schema.StepFailed
		return NextAction{Kind: ActionFailed, Reason: err.Error()}, nil
	}

	recordSampling(sctx, stepID, schema.PhaseSolve, result)
	step.Candidates = toSchemaCandidates(result.Candidates)
	step.Status = schema.StepAwaitingSolutionVote

	return NextAction{Kind: ActionContinue}, nil
}

// contextSnippet gives the solver template a hint of where its step
// sits in the tree: the parent's description, if any.
func contextSnippet(sctx *schema.Context, step *schema.Step) string {
	if step.ParentID == "" {
		return ""
	}
	if parent, ok := sctx.Steps[step.ParentID]; ok {
		return parent.Description
	}
	return ""
}
