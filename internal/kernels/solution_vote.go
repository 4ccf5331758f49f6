package kernels

import (
	"context"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// SolutionVote implements SolutionVoteTask: votes over
// solver candidates and, on a decisive winner, stores winning_output
// and advances the step to Applying. Low margin raises the same pause
// rule as decomposition voting.
func SolutionVote(ctx context.Context, d Deps, sctx *schema.Context, stepID string) (NextAction, error) {
	step, ok := sctx.Steps[stepID]
	if !ok {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "solution_vote: unknown step %q", stepID).WithSession(sctx.SessionID)
	}

	cfg := d.Domain.Agents[schema.AgentSolutionDiscriminator]
	result, pause := runVote(step, cfg.K, d.LowMarginThreshold)
	sctx.Metrics.VoteMargins = append(sctx.Metrics.VoteMargins, result.Margin)

	if pause {
		return NextAction{Kind: ActionWaitForInput, Trigger: schema.TriggerLowMargin, Details: lowMarginDetails("solution vote", result.Margin)}, nil
	}

	step.WinningOutput = *result.Winner
	step.Status = schema.StepApplying

	return NextAction{Kind: ActionContinue}, nil
}
