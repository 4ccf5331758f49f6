package runner

import (
	"context"

	"github.com/microfactory-run/microfactory/internal/kernels"
	"github.com/microfactory-run/microfactory/pkg/schema"
)


// loop is the execution loop: "pops WorkItem from queue, selects
// the kernel matching (step.status, phase), executes, applies NextAction,
// persists a checkpoint, loops." It returns once the session pauses,
// completes, or fails.
func (r *Runner) loop(ctx context.Context, sctx *schema.Context, domainCfg *schema.DomainConfig) (*schema.Context, error) {
	deps := r.kernelDeps(domainCfg, r.opts.WorkspaceRoot, sctx.Provider)

	for {
		item, ok := sctx.Dequeue()
		if !ok {
			break
		}
		step, ok := sctx.Steps[item.StepID]
		if !ok {
			continue
		}

		phase := item.Phase
		if step.Status == schema.StepPending {
			// Re-run the granularity gate at dequeue time: children are
			// enqueued by DecompositionVote with a placeholder phase
			// because the kernel that creates them has no domain context
			// of its own.
			// Write the resolved phase back into item so every downstream
			// use (nextPhase on Continue, the WaitForInput/pause requeue)
			// agrees with the kernel that actually ran instead of the
			// placeholder the item was enqueued with.
			phase = r.granularityPhase(domainCfg, step)
			item.Phase = phase
		}

		fn, ok := kernelFor(phase)
		if !ok {
			return sctx, schema.NewErrorf(schema.ErrCodeConfig, "no task kernel for phase %q", phase).
				WithStep(item.StepID).WithSession(sctx.SessionID)
		}

		var restoreK func()
		if r.opts.AdaptiveK {
			restoreK = r.applyAdaptiveK(sctx, deps, phase)
		}

		redFlagsBefore, resamplesBefore := sctx.Metrics.RedFlags, sctx.Metrics.Resamples
		marginCountBefore := len(sctx.Metrics.VoteMargins)

		action, err := r.dispatch(ctx, fn, deps, sctx, item.StepID)
		if restoreK != nil {
			restoreK()
		}
		if err != nil {
			sctx.Status = schema.SessionFailed
			r.record(ctx, schema.EventSessionFailed, map[string]any{"session_id": sctx.SessionID, "error": err.Error()})
			_ = r.checkpoint(ctx, sctx)
			return sctx, err
		}

		if r.opts.AdaptiveK {
			r.observeVoteMargin(sctx, phase, marginCountBefore)
		}

		if err := r.applyAction(ctx, sctx, item, step, action); err != nil {
			return sctx, err
		}

		if err := r.checkpoint(ctx, sctx); err != nil {
			return sctx, err
		}

		if sctx.WaitState != nil {
			break
		}

		if trigger, details, ok := r.pauseTrigger(sctx, phase, action, redFlagsBefore, resamplesBefore); ok {
			sctx.Queue = append([]schema.WorkItem{{StepID: item.StepID, Phase: phase}}, sctx.Queue...)
			sctx.Status = schema.SessionPaused
			sctx.WaitState = &schema.WaitState{StepID: item.StepID, Trigger: trigger, Details: details}
			r.record(ctx, schema.EventSessionPaused, map[string]any{"session_id": sctx.SessionID, "trigger": string(trigger)})
			if err := r.checkpoint(ctx, sctx); err != nil {
				return sctx, err
			}
			break
		}
	}

	r.finalize(ctx, sctx)
	if err := r.checkpoint(ctx, sctx); err != nil {
		return sctx, err
	}
	return sctx, nil
}

// applyAction interprets one kernel's NextAction against the shared
// Context: requeuing on pause so resume finds the same head-of-queue item
//, enqueuing the step's next phase on Continue, and
// propagating terminal results up to the parent step.
func (r *Runner) applyAction(ctx context.Context, sctx *schema.Context, item schema.WorkItem, step *schema.Step, action kernels.NextAction) error {
	switch action.Kind {
	case kernels.ActionWaitForInput:
		sctx.Status = schema.SessionPaused
		sctx.WaitState = &schema.WaitState{StepID: item.StepID, Trigger: action.Trigger, Details: action.Details}
		r.record(ctx, schema.EventSessionPaused, map[string]any{"session_id": sctx.SessionID, "trigger": string(action.Trigger)})
		// Put the item back so a later resume re-dispatches the same
		// (step, phase) pair rather than skipping past it.
		sctx.Queue = append([]schema.WorkItem{item}, sctx.Queue...)
		return nil

	case kernels.ActionContinue:
		sctx.Enqueue(schema.WorkItem{StepID: item.StepID, Phase: nextPhase(item.Phase)})
		return nil

	case kernels.ActionEnqueueChildren:
		// DecompositionVote already appended the child WorkItems itself.
		return nil

	case kernels.ActionDone:
		r.record(ctx, schema.EventStepDone, map[string]any{"step_id": item.StepID})
		return r.propagateToParent(ctx, sctx, step)

	case kernels.ActionFailed:
		r.record(ctx, schema.EventStepFailed, map[string]any{"step_id": item.StepID, "reason": action.Reason})
		return r.propagateToParent(ctx, sctx, step)

	case kernels.ActionGoTo:
		if action.TargetID != "" {
			sctx.Enqueue(schema.WorkItem{StepID: action.TargetID, Phase: item.Phase})
		}
		return nil

	default:
		return schema.NewErrorf(schema.ErrCodeConfig, "unknown next action %q", action.Kind).
			WithStep(item.StepID).WithSession(sctx.SessionID)
	}
}

// nextPhase advances a step to the vote or apply stage following the
// phase that just returned ActionContinue: Decompose -> DecompositionVote,
// Solve -> SolutionVote, SolutionVote -> ApplyVerify. DecompositionVote
// and ApplyVerify never return ActionContinue (they return
// EnqueueChildren/Done/Failed/WaitForInput); any other phase maps to
// itself.
func nextPhase(current schema.Phase) schema.Phase {
	switch current {
	case schema.PhaseDecompose:
		return schema.PhaseDecompositionVote
	case schema.PhaseSolve:
		return schema.PhaseSolutionVote
	case schema.PhaseSolutionVote:
		return schema.PhaseApplyVerify
	default:
		return current
	}
}

// propagateToParent implements the "any-child-failed ⇒
// parent-failed" policy: once every child of a Decomposed parent reaches
// a terminal state, the parent itself becomes Done or Failed. Root has no
// parent; its own terminal status instead ends the session in finalize.
func (r *Runner) propagateToParent(ctx context.Context, sctx *schema.Context, step *schema.Step) error {
	if step.ParentID == "" {
		return nil
	}
	parent, ok := sctx.Steps[step.ParentID]
	if !ok || parent.Status != schema.StepDecomposed || !sctx.AllChildrenTerminal(parent) {
		return nil
	}

	to := schema.StepDone
	if sctx.AnyChildFailed(parent) {
		to = schema.StepFailed
	}
	if err := r.stepFSM.Transition(ctx, sctx.SessionID, parent.StepID, parent.Status, to); err != nil {
		return err
	}
	parent.Status = to
	return r.propagateToParent(ctx, sctx, parent)
}

// finalize sets the session's terminal status once the queue drains with
// no outstanding pause, based on the root step's own terminal status.
func (r *Runner) finalize(ctx context.Context, sctx *schema.Context) {
	if sctx.WaitState != nil || sctx.Status == schema.SessionPaused {
		return
	}
	root, ok := sctx.Steps["root"]
	if !ok || !root.Status.IsTerminal() {
		return
	}
	to := schema.SessionCompleted
	if root.Status == schema.StepFailed {
		to = schema.SessionFailed
	}
	if err := r.sessionFSM.Transition(ctx, sctx.SessionID, sctx.Status, to); err != nil {
		r.logger.Warn("session transition event emission failed", "session_id", sctx.SessionID, "error", err)
	}
	sctx.Status = to

	if r.pool != nil {
		m := r.pool.Metrics()
		r.record(ctx, schema.EventPoolMetrics, map[string]any{
			"session_id": sctx.SessionID,
			"active":     m.Active,
			"completed":  m.Completed,
			"failed":     m.Failed,
			"panics":     m.Panics,
		})
	}
}

// pauseTrigger checks the remaining pause conditions beyond the
// LowMargin trigger the vote kernels already raise inline: cumulative
// red-flag/resample incidents introduced by this dispatch, and
// step-by-step checkpoint boundaries (post-decomposition,
// post-apply-verify).
func (r *Runner) pauseTrigger(sctx *schema.Context, phase schema.Phase, action kernels.NextAction, redFlagsBefore, resamplesBefore int) (schema.WaitTrigger, string, bool) {
	if r.opts.HumanRedFlagThreshold > 0 {
		if delta := sctx.Metrics.RedFlags - redFlagsBefore; delta >= r.opts.HumanRedFlagThreshold {
			return schema.TriggerRedFlagThreshold, "red-flag incidents reached the human review threshold", true
		}
	}
	if r.opts.HumanResampleThreshold > 0 {
		if delta := sctx.Metrics.Resamples - resamplesBefore; delta >= r.opts.HumanResampleThreshold {
			return schema.TriggerResampleBudget, "resample count reached the human review threshold", true
		}
	}
	if r.opts.StepByStep && isCheckpointBoundary(phase, action) {
		return schema.TriggerStepByStepCheckpoint, "step-by-step mode paused after crossing a checkpoint boundary", true
	}
	return "", "", false
}

// isCheckpointBoundary reports whether phase/action crosses one of the
// two step-by-step boundaries: right after a decomposition commits
// its children, or right after apply+verify settles (pass or fail).
func isCheckpointBoundary(phase schema.Phase, action kernels.NextAction) bool {
	switch phase {
	case schema.PhaseDecompositionVote:
		return action.Kind == kernels.ActionEnqueueChildren
	case schema.PhaseApplyVerify:
		return action.Kind == kernels.ActionDone || action.Kind == kernels.ActionFailed
	default:
		return false
	}
}
