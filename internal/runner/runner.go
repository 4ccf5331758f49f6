// Package runner implements the flow runner: the single
// cooperative loop that owns a session's Context, dispatches WorkItems to
// the task kernels, applies their NextAction, and checkpoints after every
// transition. Single-writer discipline over one run, event emission
// through the FSMs, persistence retried once before aborting, all
// driving the decompose-vote-solve-vote-apply state machine.
package runner

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/microfactory-run/microfactory/internal/engine"
	"github.com/microfactory-run/microfactory/internal/fsys"
	"github.com/microfactory-run/microfactory/internal/kernels"
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/sampler"
	"github.com/microfactory-run/microfactory/internal/store"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// DefaultHumanRedFlagThreshold and friends are the default pause-trigger
// values; zero disables the corresponding trigger.
const (
	DefaultHumanRedFlagThreshold  = 4
	DefaultHumanResampleThreshold = 4
	DefaultHumanLowMarginThreshold = 1
)

// Options configures one Runner instance. Every field has a documented
// default; the CLI/config layer overrides them per invocation.
type Options struct {
	HumanRedFlagThreshold  int
	HumanResampleThreshold int
	HumanLowMarginThreshold int
	AdaptiveK              bool
	StepByStep             bool
	// DryRun makes ApplyVerifyTask a no-op across every step of the
	// session: decompose and vote still run, nothing is ever written to
	// the workspace or verified.
	DryRun                 bool
	MaxConcurrentLLM       int
	// WorkspaceRoot is the repository checkout ApplyVerifyTask writes
	// into and runs the verifier against. A
	// process serving `run`/`resume`/`serve` targets exactly one
	// checkout at a time.
	WorkspaceRoot string
	// Inspect names one of `--inspect`'s modes (ops, payloads,
	// messages, files) and turns on the matching extra Debug-level
	// logging in dispatch; empty disables it.
	Inspect string
}

// DefaultOptions returns the documented default Options.
func DefaultOptions() Options {
	return Options{
		HumanRedFlagThreshold:  DefaultHumanRedFlagThreshold,
		HumanResampleThreshold: DefaultHumanResampleThreshold,
		HumanLowMarginThreshold: DefaultHumanLowMarginThreshold,
		MaxConcurrentLLM:       8,
	}
}

// DomainResolver looks up a named domain's configuration, e.g. from the
// YAML config surface.
type DomainResolver interface {
	Resolve(name string) (*schema.DomainConfig, error)
}

// Runner drives the decompose-vote-solve-vote-apply execution loop. One Runner
// serves every session of a process; per-session state lives entirely in
// the checkpointed Context.
type Runner struct {
	domains  DomainResolver
	client   ports.LlmClient
	renderer ports.PromptRenderer
	repo     ports.SessionRepository
	fsFactory func(workspaceRoot string) ports.FileSystem
	verifier *fsys.CommandVerifier
	clock    ports.Clock
	telemetry ports.TelemetrySink
	logger   *slog.Logger

	pool          *engine.WorkerPool
	sessionFSM    *engine.SessionFSM
	stepFSM       *engine.StepFSM
	eventAppender engine.EventAppender
	apiKeys       map[string]string

	adaptiveK *adaptiveKTracker

	opts Options
}

// Deps bundles the ports and adapters a Runner needs. The workspace root
// is not a dependency: FSFactory is called with Options.WorkspaceRoot
// (the CLI's --repo-path), shared by every session the Runner serves.
// FSFactory lets tests substitute an in-memory or tempdir-backed
// FileSystem without touching the real one.
type Deps struct {
	Domains        DomainResolver
	Client         ports.LlmClient
	Renderer       ports.PromptRenderer
	Repository     ports.SessionRepository
	EventAppender  engine.EventAppender
	FSFactory      func(workspaceRoot string) ports.FileSystem
	Verifier       *fsys.CommandVerifier
	Clock          ports.Clock
	Telemetry      ports.TelemetrySink
	Logger         *slog.Logger
	Options        Options
	// APIKeys maps a provider name ("openai", "anthropic", "gemini",
	// "grok") to the credential resolved by the CLI/config layer's
	// flag -> env -> ~/.env precedence.
	APIKeys map[string]string
}

// New builds a Runner from its dependencies. A zero MaxConcurrentLLM is
// replaced by 8; a zero pause threshold is kept and disables its trigger
// (DefaultOptions carries the default thresholds).
func New(d Deps) *Runner {
	opts := d.Options
	if opts.MaxConcurrentLLM == 0 {
		opts.MaxConcurrentLLM = 8
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		domains:       d.Domains,
		client:        d.Client,
		renderer:      d.Renderer,
		repo:          d.Repository,
		fsFactory:     d.FSFactory,
		verifier:      d.Verifier,
		clock:         d.Clock,
		telemetry:     d.Telemetry,
		logger:        logger,
		pool:          engine.NewWorkerPool(opts.MaxConcurrentLLM),
		sessionFSM:    engine.NewSessionFSM(d.EventAppender),
		stepFSM:       engine.NewStepFSM(d.EventAppender),
		eventAppender: d.EventAppender,
		apiKeys:       d.APIKeys,
		adaptiveK:     newAdaptiveKTracker(),
		opts:          opts,
	}
}

func (r *Runner) apiKeyFor(provider string) string {
	if r.apiKeys == nil {
		return ""
	}
	return r.apiKeys[provider]
}

// Start creates a new session rooted at prompt, in domain, and drives the
// loop until it pauses, completes, or fails.
func (r *Runner) Start(ctx context.Context, prompt, domain, provider, model string) (*schema.Context, error) {
	domainCfg, err := r.domains.Resolve(domain)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "resolve domain %q: %s", domain, err.Error())
	}

	sessionID := uuid.NewString()
	sctx := schema.NewContext(sessionID, prompt, domain, provider, model)
	sctx.Steps["root"] = &schema.Step{StepID: "root", Depth: 0, Description: prompt, Status: schema.StepPending}
	// Phase is a placeholder: the loop re-runs the granularity gate for
	// every Pending step at dequeue time, root included.
	sctx.Enqueue(schema.WorkItem{StepID: "root", Phase: schema.PhaseDecompose})
	r.record(ctx, schema.EventSessionStarted, map[string]any{"session_id": sessionID, "domain": domain})

	if err := r.checkpoint(ctx, sctx); err != nil {
		return nil, err
	}

	return r.loop(ctx, sctx, domainCfg)
}

// Resume reloads a paused (or still-running, e.g. after a crash) session
// and re-enters the loop at the head of its queue.
func (r *Runner) Resume(ctx context.Context, sessionID string) (*schema.Context, error) {
	sctx, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	domainCfg, err := r.domains.Resolve(sctx.Domain)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "resolve domain %q: %s", sctx.Domain, err.Error()).WithSession(sessionID)
	}

	if sctx.Status == schema.SessionPaused {
		if err := r.sessionFSM.Transition(ctx, sessionID, schema.SessionPaused, schema.SessionRunning); err != nil {
			return nil, err
		}
		sctx.Status = schema.SessionRunning
		sctx.WaitState = nil
	}

	return r.loop(ctx, sctx, domainCfg)
}

// Status loads a session without mutating it.
func (r *Runner) Status(ctx context.Context, sessionID string) (*schema.Context, error) {
	return r.load(ctx, sessionID)
}

// Shutdown stops the shared LLM worker pool from accepting further
// submissions and blocks until every in-flight dispatch finishes, for a
// process that is serving `serve`/`mcp` to drain cleanly on SIGTERM.
func (r *Runner) Shutdown() {
	if r.pool != nil {
		r.pool.Shutdown()
	}
}

// Cancel implements the cooperative-shutdown policy for an
// externally-requested stop (the HTTP `/sessions/{id}/cancel` route):
// the session is marked Failed and checkpointed, never torn down
// mid-batch (in-flight LLM calls are never in progress at this point
// since the single-writer loop only yields control between kernel
// dispatches).
func (r *Runner) Cancel(ctx context.Context, sessionID string) error {
	sctx, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sctx.Status.IsTerminal() {
		return nil
	}
	if err := engine.CancelSession(ctx, r.sessionFSM, sessionID, sctx.Status); err != nil {
		return err
	}
	sctx.Status = schema.SessionFailed
	sctx.WaitState = nil
	r.record(ctx, schema.EventSessionCancelled, map[string]any{"session_id": sessionID})
	return r.checkpoint(ctx, sctx)
}

// RunSubprocess implements "Subprocess mode": constructs a
// one-step Context, runs Solve then SolutionVote, and returns the
// winning output without persistence.
func (r *Runner) RunSubprocess(ctx context.Context, prompt, domain, provider, model string) (*schema.Context, error) {
	domainCfg, err := r.domains.Resolve(domain)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "resolve domain %q: %s", domain, err.Error())
	}

	sctx := schema.NewContext(uuid.NewString(), prompt, domain, provider, model)
	sctx.Steps["root"] = &schema.Step{StepID: "root", Depth: 0, Description: prompt, Status: schema.StepPending}

	deps := r.kernelDeps(domainCfg, "", provider)

	solveAction, err := r.dispatch(ctx, kernels.Solve, deps, sctx, "root")
	if err != nil {
		return nil, err
	}
	if solveAction.Kind == kernels.ActionFailed {
		return sctx, nil
	}
	action, err := r.dispatch(ctx, kernels.SolutionVote, deps, sctx, "root")
	if err != nil {
		return nil, err
	}
	if action.Kind == kernels.ActionWaitForInput {
		sctx.Status = schema.SessionPaused
		sctx.WaitState = &schema.WaitState{StepID: "root", Trigger: action.Trigger, Details: action.Details}
	}
	return sctx, nil
}

func (r *Runner) load(ctx context.Context, sessionID string) (*schema.Context, error) {
	blob, _, ok, err := r.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePersistence, "load session: %s", err.Error()).WithSession(sessionID)
	}
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %s not found", sessionID).WithSession(sessionID)
	}
	var sctx schema.Context
	if err := json.Unmarshal(blob, &sctx); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePersistence, "decode session snapshot: %s", err.Error()).WithSession(sessionID)
	}
	return &sctx, nil
}

// checkpoint persists sctx, retrying once before aborting the session per
// the persistence error policy.
func (r *Runner) checkpoint(ctx context.Context, sctx *schema.Context) error {
	blob, err := json.Marshal(sctx)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "encode session snapshot: %s", err.Error()).WithSession(sctx.SessionID)
	}
	summary := ports.SessionSummary{
		ID: sctx.SessionID, Status: string(sctx.Status), Provider: sctx.Provider, Model: sctx.Model, Domain: sctx.Domain,
	}
	if r.clock != nil {
		summary.UpdatedAt = r.clock.NowMs()
	}

	saveErr := r.repo.Save(ctx, sctx.SessionID, blob, summary)
	if saveErr == nil {
		r.record(ctx, schema.EventCheckpointWritten, map[string]any{"session_id": sctx.SessionID})
		return nil
	}
	if saveErr = r.repo.Save(ctx, sctx.SessionID, blob, summary); saveErr != nil {
		r.logger.Error("checkpoint write failed twice, aborting session", "session_id", sctx.SessionID, "error", saveErr)
		return schema.NewErrorf(schema.ErrCodePersistence, "checkpoint failed after retry: %s", saveErr.Error()).WithSession(sctx.SessionID)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, name string, attrs map[string]any) {
	if r.telemetry != nil {
		r.telemetry.Record(ctx, name, attrs)
	}
}

// kernelDeps clones domainCfg's Agents table into a fresh map so that a
// single Runner serving several concurrent sessions of the same domain
// never races on the adaptive-k heuristic's temporary K overrides
// (adaptive.go), and so the per-step reset has a clean base K to reset back to.
func (r *Runner) kernelDeps(domainCfg *schema.DomainConfig, workspaceRoot, provider string) kernels.Deps {
	domainCopy := *domainCfg
	domainCopy.Agents = make(map[schema.AgentKind]schema.AgentConfig, len(domainCfg.Agents))
	for k, v := range domainCfg.Agents {
		domainCopy.Agents[k] = v
	}

	apiKey := r.apiKeyFor(provider)
	flaggers := map[schema.AgentKind]ports.RedFlagger{}
	for kind, cfg := range domainCopy.Agents {
		pipeline, err := buildFlaggers(cfg, &domainCopy, r.renderer, r.client, apiKey)
		if err == nil {
			flaggers[kind] = pipeline
		} else {
			r.logger.Warn("red_flagger pipeline build failed, step runs unflagged", "agent_kind", string(kind), "error", err)
		}
	}
	var fs ports.FileSystem
	if r.fsFactory != nil {
		fs = r.fsFactory(workspaceRoot)
	}
	return kernels.Deps{
		Domain:             &domainCopy,
		Renderer:           r.renderer,
		Sampler:            sampler.New(r.client, r.pool),
		Flaggers:           flaggers,
		FS:                 fs,
		Verifier:           r.verifier,
		APIKey:             apiKey,
		WorkspaceRoot:      workspaceRoot,
		LowMarginThreshold: r.opts.HumanLowMarginThreshold,
		DryRun:             r.opts.DryRun,
	}
}

// granularityPhase implements the granularity gate: a Pending
// step goes to Decompose unless the domain's step_granularity bounds mark
// it as already atomic, in which case it goes straight to Solve. The root
// step always begins in Decomposition unless it is trivially atomic
// (depth 0 counts as non-atomic by definition since max_depth, when set,
// bounds how *deep* recursion may go, not the root itself).
func (r *Runner) granularityPhase(d *schema.DomainConfig, step *schema.Step) schema.Phase {
	if isAtomic(d.Granularity, step) {
		return schema.PhaseSolve
	}
	return schema.PhaseDecompose
}

// kernelFor resolves the task kernel matching a WorkItem's phase.
type kernelFunc = func(ctx context.Context, d kernels.Deps, sctx *schema.Context, stepID string) (kernels.NextAction, error)

func kernelFor(phase schema.Phase) (kernelFunc, bool) {
	switch phase {
	case schema.PhaseDecompose:
		return kernels.Decompose, true
	case schema.PhaseDecompositionVote:
		return kernels.DecompositionVote, true
	case schema.PhaseSolve:
		return kernels.Solve, true
	case schema.PhaseSolutionVote:
		return kernels.SolutionVote, true
	case schema.PhaseApplyVerify:
		return kernels.ApplyVerify, true
	default:
		return nil, false
	}
}

// dispatch runs one kernel and logs the status it left the step in.
//
// A single kernel call often spans more than one of StepFSM's individually
// valid edges (e.g. Decompose alone drives Pending -> Decomposing ->
// AwaitingDecompositionVote). Policing that compound hop against
// schema.CanTransition would reject transitions the kernels themselves
// already proved correct in their own tests, so dispatch logs the
// reached status directly via engine.StepEventType instead of routing
// through StepFSM.Transition; StepFSM is reserved for the runner's own
// single-edge decisions (see propagateToParent).
func (r *Runner) dispatch(ctx context.Context, fn kernelFunc, deps kernels.Deps, sctx *schema.Context, stepID string) (kernels.NextAction, error) {
	step, ok := sctx.Steps[stepID]
	if !ok {
		return kernels.NextAction{}, schema.NewErrorf(schema.ErrCodeNotFound, "step %s not found", stepID).WithSession(sctx.SessionID)
	}
	from := step.Status
	var startMs int64
	if r.clock != nil {
		startMs = r.clock.NowMs()
	}

	action, err := fn(ctx, deps, sctx, stepID)

	if r.clock != nil {
		sctx.Metrics.RecordDuration(stepID, r.clock.NowMs()-startMs)
	}
	if err != nil {
		return action, err
	}

	if to := step.Status; to != from {
		r.emitStepEvent(ctx, sctx.SessionID, stepID, to)
	}
	r.inspect(sctx.SessionID, step, action)
	return action, nil
}

// inspect emits the extra Debug-level detail `--inspect` asks for. Each mode logs a different slice of what dispatch already
// has in hand rather than adding a second code path through the kernels:
//
//   - ops: the NextAction a kernel returned for this step
//   - payloads: every candidate's full text (Candidates carries it
//     untruncated; only history entries keep a truncated preview)
//   - messages: the step's winning output, i.e. what the solve/decompose
//     vote actually settled on
//   - files: the file paths a winning output is about to write, parsed
//     the same way ApplyVerify's own patch parser does
func (r *Runner) inspect(sessionID string, step *schema.Step, action kernels.NextAction) {
	if r.opts.Inspect == "" {
		return
	}
	switch r.opts.Inspect {
	case "ops":
		r.logger.Debug("inspect:ops", "session_id", sessionID, "step_id", step.StepID, "action", string(action.Kind), "status", string(step.Status))
	case "payloads":
		for i, c := range step.Candidates {
			r.logger.Debug("inspect:payloads", "session_id", sessionID, "step_id", step.StepID, "candidate", i, "accepted", c.Accepted, "text", c.Text)
		}
	case "messages":
		if step.WinningOutput != "" {
			r.logger.Debug("inspect:messages", "session_id", sessionID, "step_id", step.StepID, "winning_output", step.WinningOutput)
		}
	case "files":
		for _, block := range fsys.ExtractFileBlocks(step.WinningOutput) {
			r.logger.Debug("inspect:files", "session_id", sessionID, "step_id", step.StepID, "path", block.Path)
		}
	}
}

func (r *Runner) emitStepEvent(ctx context.Context, sessionID, stepID string, to schema.StepStatus) {
	if r.eventAppender == nil {
		return
	}
	eventType := engine.StepEventType(to)
	if eventType == "" {
		return
	}
	if err := r.eventAppender.AppendEvent(ctx, &store.Event{SessionID: sessionID, StepID: stepID, Type: eventType}); err != nil {
		r.logger.Warn("step event emission failed", "step_id", stepID, "session_id", sessionID, "error", err)
	}
}

