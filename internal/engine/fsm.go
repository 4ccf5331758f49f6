package engine

import (
	"context"
	"sync"

	"github.com/microfactory-run/microfactory/internal/store"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the store; used by FSMs to emit audit
// events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// --- Session FSM ---

type sessionHookKey struct {
	from, to schema.SessionStatus
}

// SessionFSM manages session lifecycle state transitions, narrowed to
// microfactory's four-state session model.
type SessionFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[sessionHookKey][]TransitionHook
	after    map[sessionHookKey][]TransitionHook
}

// NewSessionFSM creates a new SessionFSM that emits events via the given appender.
func NewSessionFSM(appender EventAppender) *SessionFSM {
	return &SessionFSM{
		appender: appender,
		before:   make(map[sessionHookKey][]TransitionHook),
		after:    make(map[sessionHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a session transition.
func (f *SessionFSM) OnBefore(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a session transition.
func (f *SessionFSM) OnAfter(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a session state transition, emitting
// the corresponding event via the appender. The caller is responsible for
// persisting the new state to the store.
func (f *SessionFSM) Transition(ctx context.Context, sessionID string, from, to schema.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !schema.CanTransitionSession(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid session transition: %s -> %s", from, to).
			WithSession(sessionID).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}

	key := sessionHookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := sessionEventType(to); eventType != "" {
		event := &store.Event{
			SessionID: sessionID,
			Type:      eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodePersistence, "emit session event: %s", err.Error()).
				WithSession(sessionID).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

// SessionEventType exposes the session status -> event type mapping so
// callers that emit events for transitions the FSM itself did not drive
// (e.g. the runner logging the terminal state a dispatch loop reached)
// stay consistent with SessionFSM.Transition's own bookkeeping.
func SessionEventType(to schema.SessionStatus) string { return sessionEventType(to) }

func sessionEventType(to schema.SessionStatus) string {
	switch to {
	case schema.SessionRunning:
		return schema.EventSessionResumed
	case schema.SessionPaused:
		return schema.EventSessionPaused
	case schema.SessionCompleted:
		return schema.EventSessionCompleted
	case schema.SessionFailed:
		return schema.EventSessionFailed
	default:
		return ""
	}
}

// --- Step FSM ---

type stepHookKey struct {
	from, to schema.StepStatus
}

// StepFSM manages step lifecycle state transitions.
type StepFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[stepHookKey][]TransitionHook
	after    map[stepHookKey][]TransitionHook
}

// NewStepFSM creates a new StepFSM that emits events via the given appender.
func NewStepFSM(appender EventAppender) *StepFSM {
	return &StepFSM{
		appender: appender,
		before:   make(map[stepHookKey][]TransitionHook),
		after:    make(map[stepHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a step transition.
func (f *StepFSM) OnBefore(from, to schema.StepStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stepHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a step transition.
func (f *StepFSM) OnAfter(from, to schema.StepStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stepHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a step state transition, emitting the
// corresponding event via the appender. Validity is delegated to
// schema.CanTransition, the single source of truth for the step lifecycle
// (pkg/schema/events.go) so the engine and the kernels agree on it.
func (f *StepFSM) Transition(ctx context.Context, sessionID, stepID string, from, to schema.StepStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !schema.CanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid step transition: %s -> %s", from, to).
			WithStep(stepID).WithSession(sessionID).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}

	key := stepHookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := stepEventType(to); eventType != "" {
		event := &store.Event{
			SessionID: sessionID,
			StepID:    stepID,
			Type:      eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodePersistence, "emit step event: %s", err.Error()).
				WithStep(stepID).WithSession(sessionID).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

// StepEventType exposes the step status -> event type mapping for callers
// that need to log a status a task kernel reached in one call spanning
// several of StepFSM's individually-valid edges (e.g. Pending straight to
// AwaitingDecompositionVote), which StepFSM.Transition's adjacency check
// would otherwise reject as a single hop.
func StepEventType(to schema.StepStatus) string { return stepEventType(to) }

func stepEventType(to schema.StepStatus) string {
	switch to {
	case schema.StepDecomposing, schema.StepSolving:
		return schema.EventStepStarted
	case schema.StepDecomposed:
		return schema.EventStepDecomposed
	case schema.StepApplying:
		return schema.EventStepSolved
	case schema.StepVerifying:
		return schema.EventStepApplied
	case schema.StepDone:
		return schema.EventStepDone
	case schema.StepFailed:
		return schema.EventStepFailed
	default:
		return ""
	}
}

// --- Cancel cascade ---

// CancelSession transitions a session to failed. It does not touch or
// report on the session's steps.
func CancelSession(ctx context.Context, fsm *SessionFSM, sessionID string, currentStatus schema.SessionStatus) error {
	return fsm.Transition(ctx, sessionID, currentStatus, schema.SessionFailed)
}

// IsTerminalStep reports whether a step status will never transition again.
func IsTerminalStep(s schema.StepStatus) bool {
	return s.IsTerminal()
}
