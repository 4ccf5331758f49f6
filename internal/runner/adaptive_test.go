package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

func TestEffectiveK_DisabledWhenBaseKZero(t *testing.T) {
	assert.Equal(t, 0, effectiveK(0, []int{5, 5, 5}))
}

func TestEffectiveK_EmptyWindowKeepsBase(t *testing.T) {
	assert.Equal(t, 3, effectiveK(3, nil))
}

func TestEffectiveK_HighMarginDecrements(t *testing.T) {
	// base k=3, mean margin 6 > k+2=5 -> decrement to 2.
	assert.Equal(t, 2, effectiveK(3, []int{6, 6, 6}))
}

func TestEffectiveK_HighMarginFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, effectiveK(1, []int{10, 10}))
}

func TestEffectiveK_LowMarginIncrements(t *testing.T) {
	// mean margin 1 < k=3 -> increment to 4.
	assert.Equal(t, 4, effectiveK(3, []int{1, 1}))
}

func TestEffectiveK_LowMarginBoundedAtKPlus3(t *testing.T) {
	// repeated increments never overshoot k+3, and a single call never
	// jumps past k+1 regardless of how far below k the mean sits.
	assert.Equal(t, 4, effectiveK(3, []int{0, 0, 0}))
}

func TestEffectiveK_MeanEqualToBaseKeepsBase(t *testing.T) {
	assert.Equal(t, 3, effectiveK(3, []int{3, 3, 3}))
}

func TestAgentKindForVotePhase(t *testing.T) {
	kind, ok := agentKindForVotePhase(schema.PhaseDecompositionVote)
	assert.True(t, ok)
	assert.Equal(t, schema.AgentDecompositionDiscriminator, kind)

	kind, ok = agentKindForVotePhase(schema.PhaseSolutionVote)
	assert.True(t, ok)
	assert.Equal(t, schema.AgentSolutionDiscriminator, kind)

	_, ok = agentKindForVotePhase(schema.PhaseSolve)
	assert.False(t, ok)
}

func TestAdaptiveKTracker_WindowTrimsToSize(t *testing.T) {
	tr := newAdaptiveKTracker()
	for i := 0; i < adaptiveWindowSize+3; i++ {
		tr.observe("s1", schema.AgentSolutionDiscriminator, i)
	}
	w := tr.window("s1", schema.AgentSolutionDiscriminator)
	assert.Len(t, w, adaptiveWindowSize)
	// oldest observations fell off the front.
	assert.Equal(t, 3, w[0])
}

func TestAdaptiveKTracker_WindowIsIsolatedPerSessionAndKind(t *testing.T) {
	tr := newAdaptiveKTracker()
	tr.observe("s1", schema.AgentDecompositionDiscriminator, 9)
	tr.observe("s2", schema.AgentDecompositionDiscriminator, 1)
	tr.observe("s1", schema.AgentSolutionDiscriminator, 2)

	assert.Equal(t, []int{9}, tr.window("s1", schema.AgentDecompositionDiscriminator))
	assert.Equal(t, []int{1}, tr.window("s2", schema.AgentDecompositionDiscriminator))
	assert.Equal(t, []int{2}, tr.window("s1", schema.AgentSolutionDiscriminator))
}
