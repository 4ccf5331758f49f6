package schema

// StepStatus represents the lifecycle state of a step. A step advances
// monotonically along exactly one of two paths:
// the decomposition path or the solve path.
type StepStatus string

const (
	StepPending                   StepStatus = "Pending"
	StepDecomposing               StepStatus = "Decomposing"
	StepAwaitingDecompositionVote StepStatus = "AwaitingDecompositionVote"
	StepDecomposed                StepStatus = "Decomposed"
	StepSolving                   StepStatus = "Solving"
	StepAwaitingSolutionVote      StepStatus = "AwaitingSolutionVote"
	StepApplying                  StepStatus = "Applying"
	StepVerifying                 StepStatus = "Verifying"
	StepDone                      StepStatus = "Done"
	StepFailed                    StepStatus = "Failed"
)

// IsTerminal reports whether a step has reached Done or Failed.
func (s StepStatus) IsTerminal() bool {
	return s == StepDone || s == StepFailed
}

// ValidStepTransitions enumerates the two legal paths a step may follow.
// Enforced by the flow runner.
var ValidStepTransitions = map[StepStatus][]StepStatus{
	StepPending:                   {StepDecomposing, StepSolving},
	StepDecomposing:               {StepAwaitingDecompositionVote},
	StepAwaitingDecompositionVote: {StepDecomposed, StepFailed},
	StepDecomposed:                {StepDone, StepFailed},
	StepSolving:                   {StepAwaitingSolutionVote},
	StepAwaitingSolutionVote:      {StepApplying, StepFailed},
	StepApplying:                  {StepVerifying, StepFailed},
	StepVerifying:                 {StepDone, StepFailed},
}

// CanTransition reports whether from -> to is a legal step transition.
func CanTransition(from, to StepStatus) bool {
	for _, s := range ValidStepTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SessionStatus is the top-level status reported by the session export
// schema and used by the CLI's `status` command and the HTTP
// surface.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// IsTerminal reports whether a session has reached Completed or Failed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// ValidSessionTransitions enumerates the legal top-level session
// transitions driven by the flow runner's pause/resume/completion logic.
var ValidSessionTransitions = map[SessionStatus][]SessionStatus{
	SessionRunning:   {SessionPaused, SessionCompleted, SessionFailed},
	SessionPaused:    {SessionRunning, SessionFailed},
	SessionCompleted: {},
	SessionFailed:    {},
}

// CanTransitionSession reports whether from -> to is a legal session
// transition.
func CanTransitionSession(from, to SessionStatus) bool {
	for _, s := range ValidSessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WaitTrigger names the reason a session was suspended awaiting human
// input.
type WaitTrigger string

const (
	TriggerRedFlagThreshold     WaitTrigger = "RedFlagThreshold"
	TriggerResampleBudget       WaitTrigger = "ResampleBudgetExceeded"
	TriggerLowMargin            WaitTrigger = "LowMargin"
	TriggerStepByStepCheckpoint WaitTrigger = "StepByStepCheckpoint"
)

// Event type constants for the audit/telemetry event log, covering
// session/step lifecycle events rather than generic workflow-definition
// events.
const (
	EventSessionStarted   = "session_started"
	EventSessionCompleted = "session_completed"
	EventSessionFailed    = "session_failed"
	EventSessionPaused    = "session_paused"
	EventSessionResumed   = "session_resumed"
	EventSessionCancelled = "session_cancelled"

	EventStepStarted    = "step_started"
	EventStepDecomposed = "step_decomposed"
	EventStepSolved     = "step_solved"
	EventStepApplied    = "step_applied"
	EventStepVerified   = "step_verified"
	EventStepDone       = "step_done"
	EventStepFailed     = "step_failed"

	EventEnsembleSampled    = "ensemble_sampled"
	EventCandidateFlagged   = "candidate_flagged"
	EventCandidateResampled = "candidate_resampled"
	EventVoteCompleted      = "vote_completed"

	EventCheckpointWritten = "checkpoint_written"

	// EventPoolMetrics reports a snapshot of the shared LLM worker pool's
	// PoolMetrics once a session reaches a terminal status.
	EventPoolMetrics = "pool_metrics"
)
