package runner

import (
	"sync"

	"github.com/microfactory-run/microfactory/internal/kernels"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// adaptiveWindowSize is the rolling window length left as "N"
// without pinning a value; five recent votes is enough to smooth a single
// noisy margin without reacting too slowly to a real shift.
const adaptiveWindowSize = 5

// adaptiveKTracker maintains, per session and discriminator agent kind, a
// rolling window of recent vote margins for the adaptive-k heuristic.
// Windows live only in memory: whether a decrement should outlive a step
// is left unresolved by design, and this implementation resets the
// *applied* K back to the domain's base value after every vote dispatch,
// so the window only ever smooths
// consecutive votes within the same still-running process.
type adaptiveKTracker struct {
	mu      sync.Mutex
	windows map[string][]int
}

func newAdaptiveKTracker() *adaptiveKTracker {
	return &adaptiveKTracker{windows: make(map[string][]int)}
}

func trackerKey(sessionID string, kind schema.AgentKind) string {
	return sessionID + ":" + string(kind)
}

func (t *adaptiveKTracker) window(sessionID string, kind schema.AgentKind) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.windows[trackerKey(sessionID, kind)]...)
}

func (t *adaptiveKTracker) observe(sessionID string, kind schema.AgentKind, margin int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := trackerKey(sessionID, kind)
	w := append(t.windows[key], margin)
	if len(w) > adaptiveWindowSize {
		w = w[len(w)-adaptiveWindowSize:]
	}
	t.windows[key] = w
}

// effectiveK implements the heuristic literally: mean margin
// above k+2 tentatively decrements k (floor 1); mean margin below k
// increments it, bounded at k+3.
func effectiveK(baseK int, window []int) int {
	if baseK <= 0 || len(window) == 0 {
		return baseK
	}
	var sum int
	for _, m := range window {
		sum += m
	}
	mean := float64(sum) / float64(len(window))

	switch {
	case mean > float64(baseK+2):
		if baseK > 1 {
			return baseK - 1
		}
		return 1
	case mean < float64(baseK):
		if baseK+1 > baseK+3 {
			return baseK + 3
		}
		return baseK + 1
	default:
		return baseK
	}
}

func agentKindForVotePhase(phase schema.Phase) (schema.AgentKind, bool) {
	switch phase {
	case schema.PhaseDecompositionVote:
		return schema.AgentDecompositionDiscriminator, true
	case schema.PhaseSolutionVote:
		return schema.AgentSolutionDiscriminator, true
	default:
		return "", false
	}
}

// applyAdaptiveK overrides a vote phase's discriminator K with the
// heuristic's effective value for the duration of one kernel dispatch and
// returns a closure that restores the domain's base K. Non-vote phases
// return a nil closure.
func (r *Runner) applyAdaptiveK(sctx *schema.Context, deps kernels.Deps, phase schema.Phase) func() {
	kind, ok := agentKindForVotePhase(phase)
	if !ok {
		return nil
	}
	cfg := deps.Domain.Agents[kind]
	baseK := cfg.K
	eff := effectiveK(baseK, r.adaptiveK.window(sctx.SessionID, kind))

	if sctx.Metrics.EffectiveK == nil {
		sctx.Metrics.EffectiveK = make(map[string]int)
	}
	sctx.Metrics.EffectiveK[string(kind)] = eff

	if eff == baseK {
		return nil
	}
	cfg.K = eff
	deps.Domain.Agents[kind] = cfg
	return func() {
		restored := deps.Domain.Agents[kind]
		restored.K = baseK
		deps.Domain.Agents[kind] = restored
	}
}

// observeVoteMargin feeds the margin a just-completed vote dispatch
// produced back into that agent kind's rolling window.
func (r *Runner) observeVoteMargin(sctx *schema.Context, phase schema.Phase, marginCountBefore int) {
	kind, ok := agentKindForVotePhase(phase)
	if !ok {
		return
	}
	if len(sctx.Metrics.VoteMargins) <= marginCountBefore {
		return
	}
	margin := sctx.Metrics.VoteMargins[len(sctx.Metrics.VoteMargins)-1]
	r.adaptiveK.observe(sctx.SessionID, kind, margin)
}
