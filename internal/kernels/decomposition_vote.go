package kernels

import (
	"context"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// DecompositionVote implements DecompositionVoteTask: votes
// over the decomposition candidates, and on a decisive winner parses it
// into child Steps enqueued in order. A low-margin or empty result
// raises WaitForInput(LowMargin) instead of committing to a decomposition.
func DecompositionVote(ctx context.Context, d Deps, sctx *schema.Context, stepID string) (NextAction, error) {
	step, ok := sctx.Steps[stepID]
	if !ok {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "decomposition_vote: unknown step %q", stepID).WithSession(sctx.SessionID)
	}

	cfg := d.Domain.Agents[schema.AgentDecompositionDiscriminator]
	result, pause := runVote(step, cfg.K, d.LowMarginThreshold)
	sctx.Metrics.VoteMargins = append(sctx.Metrics.VoteMargins, result.Margin)

	if pause {
		return NextAction{Kind: ActionWaitForInput, Trigger: schema.TriggerLowMargin, Details: lowMarginDetails("decomposition vote", result.Margin)}, nil
	}

	children := ParseChildDescriptions(*result.Winner)
	if len(children) == 0 {
		step.Status = schema.StepFailed
		return NextAction{Kind: ActionFailed, Reason: "winning decomposition produced no child subtasks"}, nil
	}

	childIDs := make([]string, 0, len(children))
	for i, desc := range children {
		id := childStepID(stepID, i)
		sctx.Steps[id] = &schema.Step{
			StepID:      id,
			ParentID:    stepID,
			Depth:       step.Depth + 1,
			Description: desc,
			Status:      schema.StepPending,
		}
		sctx.Enqueue(schema.WorkItem{StepID: id, Phase: schema.PhaseDecompose})
		childIDs = append(childIDs, id)
	}

	step.WinningOutput = *result.Winner
	step.ChildIDs = childIDs
	step.Status = schema.StepDecomposed

	return NextAction{Kind: ActionEnqueueChildren, ChildIDs: childIDs}, nil
}
