package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microfactory-run/microfactory/internal/runner"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// decomposeTieDomain builds a domain whose root step decomposes into two
// candidate plans that tie 2-2, deliberately never settling decisively,
// so Start() always pauses at the decomposition vote.
func decomposeTieDomain() *schema.DomainConfig {
	return &schema.DomainConfig{
		Name: "resume",
		Agents: map[schema.AgentKind]schema.AgentConfig{
			schema.AgentDecomposition:              {PromptTemplate: "decompose", Samples: 4},
			schema.AgentDecompositionDiscriminator: {K: 3},
		},
		Applier: schema.ApplierOverwriteFile,
	}
}

// TestResume covers the case where a session parked at a LowMargin pause
// survives a simulated process restart (a fresh Runner built over the
// same store) and re-dispatches the identical kernel against the
// identical queue head, reaching the identical outcome.
func TestResume(t *testing.T) {
	h := newHarness(t)
	domain := decomposeTieDomain()
	opts := runner.Options{MaxConcurrentLLM: 1, HumanLowMarginThreshold: 1}

	r1 := h.buildRunner(domain, []string{"do a", "do a", "do b", "do b"}, opts)
	before, err := r1.Start(context.Background(), "build the feature", "resume", "test", "test-model")
	require.NoError(t, err)

	require.NotNil(t, before.WaitState)
	assert.Equal(t, schema.TriggerLowMargin, before.WaitState.Trigger)
	assert.Equal(t, "root", before.WaitState.StepID)
	require.NotEmpty(t, before.Queue)
	assert.Equal(t, schema.WorkItem{StepID: "root", Phase: schema.PhaseDecompositionVote}, before.Queue[0])
	require.Len(t, before.Metrics.VoteMargins, 1)
	firstMargin := before.Metrics.VoteMargins[0]

	// A second Runner over the same backing store, standing in for a
	// fresh process picking the session back up. Its own scripted client
	// is never consulted: DecompositionVote reduces over candidates the
	// first run already stored, with no further sampling.
	r2 := h.reopenRunner(domain, nil, opts)
	after, err := r2.Resume(context.Background(), before.SessionID)
	require.NoError(t, err)

	require.NotNil(t, after.WaitState)
	assert.Equal(t, schema.TriggerLowMargin, after.WaitState.Trigger)
	assert.Equal(t, "root", after.WaitState.StepID)
	require.Len(t, after.Metrics.VoteMargins, 2)
	assert.Equal(t, firstMargin, after.Metrics.VoteMargins[1])
}

// verifyWriteDomain builds a two-child domain whose decomposition is a
// foregone conclusion (a single candidate, k=1) so the scenario's
// determinism rests entirely on the solve/apply/verify path: each child
// writes result.txt via ApplyVerify's overwrite_file applier, and a
// verifier that greps for a literal "OK" prefix passes one child and
// fails the other.
func verifyWriteDomain() *schema.DomainConfig {
	return &schema.DomainConfig{
		Name: "verify",
		Agents: map[schema.AgentKind]schema.AgentConfig{
			schema.AgentDecomposition:              {PromptTemplate: "decompose", Samples: 1},
			schema.AgentDecompositionDiscriminator: {K: 1},
			schema.AgentSolver:                     {PromptTemplate: "solve", Samples: 1},
			schema.AgentSolutionDiscriminator:      {K: 1},
		},
		Granularity: schema.StepGranularity{MaxDepth: 1},
		Verifier:    "grep -q '^OK' result.txt || (echo 'missing OK prefix' 1>&2 && exit 1)",
		Applier:     schema.ApplierOverwriteFile,
	}
}

// TestVerificationFailure covers the case where one child's winning output
// applies and verifies cleanly; the other applies cleanly but fails
// verification. The failing child ends Failed(verifier_output); its
// sibling still reaches Done on its own; once both are terminal the
// parent and session end Failed.
func TestVerificationFailure(t *testing.T) {
	h := newHarness(t)
	domain := verifyWriteDomain()
	opts := runner.Options{MaxConcurrentLLM: 1, WorkspaceRoot: h.workspaceRoot}

	r := h.buildRunner(domain, []string{
		"do a\ndo b",
		`<file path="result.txt">OK</file>`,
		`<file path="result.txt">FAIL</file>`,
	}, opts)

	sctx, err := r.Start(context.Background(), "write the result file", "verify", "test", "test-model")
	require.NoError(t, err)

	assert.Equal(t, schema.SessionFailed, sctx.Status)

	root := sctx.Steps["root"]
	require.NotNil(t, root)
	assert.Equal(t, schema.StepFailed, root.Status)
	require.Len(t, root.ChildIDs, 2)

	var doneChild, failedChild *schema.Step
	for _, id := range root.ChildIDs {
		child := sctx.Steps[id]
		require.NotNil(t, child)
		switch child.Status {
		case schema.StepDone:
			doneChild = child
		case schema.StepFailed:
			failedChild = child
		}
	}

	require.NotNil(t, doneChild, "one child must reach Done independently of its sibling's failure")
	require.NotNil(t, failedChild)
	assert.NotEmpty(t, failedChild.VerifierOutput)
}
