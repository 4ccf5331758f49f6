package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

func TestCheckpoint_SucceedsOnFirstTry(t *testing.T) {
	repo := newFakeRepo()
	r := newTestRunner(testDomain(schema.StepGranularity{}), &scriptedClient{}, repo, &fakeAppender{}, Options{})
	sctx := schema.NewContext("s1", "p", "test", "openai", "m")

	require.NoError(t, r.checkpoint(context.Background(), sctx))
	assert.Equal(t, 1, repo.saveCalls)
	_, _, ok, _ := repo.Load(context.Background(), "s1")
	assert.True(t, ok)
}

func TestCheckpoint_RetriesOnceThenSucceeds(t *testing.T) {
	repo := newFakeRepo()
	repo.failSaves = 1
	r := newTestRunner(testDomain(schema.StepGranularity{}), &scriptedClient{}, repo, &fakeAppender{}, Options{})
	sctx := schema.NewContext("s1", "p", "test", "openai", "m")

	require.NoError(t, r.checkpoint(context.Background(), sctx))
	assert.Equal(t, 2, repo.saveCalls)
}

func TestCheckpoint_AbortsAfterSecondFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failSaves = 2
	r := newTestRunner(testDomain(schema.StepGranularity{}), &scriptedClient{}, repo, &fakeAppender{}, Options{})
	sctx := schema.NewContext("s1", "p", "test", "openai", "m")

	err := r.checkpoint(context.Background(), sctx)
	require.Error(t, err)
	merr, ok := err.(*schema.MicrofactoryError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodePersistence, merr.Code)
	assert.Equal(t, 2, repo.saveCalls)
}

func TestRunner_StartRunsDecompositionThenSolvesEachChild(t *testing.T) {
	dir := t.TempDir()
	client := &scriptedClient{responses: []string{
		"- first part\n- second part",
		`<file path="first.txt">content one</file>`,
		`<file path="second.txt">content two</file>`,
	}}
	repo := newFakeRepo()
	appender := &fakeAppender{}
	domain := testDomain(schema.StepGranularity{MaxDepth: 1})
	r := newTestRunner(domain, client, repo, appender, Options{WorkspaceRoot: dir})

	sctx, err := r.Start(context.Background(), "build the thing", "test", "openai", "gpt")
	require.NoError(t, err)
	require.NotNil(t, sctx)

	assert.Equal(t, schema.SessionCompleted, sctx.Status)
	assert.Equal(t, schema.StepDone, sctx.Steps["root"].Status)
	require.Len(t, sctx.Steps["root"].ChildIDs, 2)
	assert.Equal(t, schema.StepDone, sctx.Steps["root.0"].Status)
	assert.Equal(t, schema.StepDone, sctx.Steps["root.1"].Status)

	data, err := os.ReadFile(filepath.Join(dir, "first.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content one", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "second.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content two", string(data))

	// a snapshot of the finished session must have been persisted.
	blob, _, ok, loadErr := repo.Load(context.Background(), sctx.SessionID)
	require.NoError(t, loadErr)
	require.True(t, ok)
	assert.NotEmpty(t, blob)
}

func TestRunner_StartFailsSessionWhenAChildVerificationFails(t *testing.T) {
	dir := t.TempDir()
	client := &scriptedClient{responses: []string{
		"- only part",
		`<file path="out.txt">bad output</file>`,
	}}
	repo := newFakeRepo()
	domain := testDomain(schema.StepGranularity{MaxDepth: 1})
	domain.Verifier = "exit 1"
	r := newTestRunner(domain, client, repo, &fakeAppender{}, Options{WorkspaceRoot: dir})

	sctx, err := r.Start(context.Background(), "build the thing", "test", "openai", "gpt")
	require.NoError(t, err)
	require.NotNil(t, sctx)

	assert.Equal(t, schema.SessionFailed, sctx.Status)
	assert.Equal(t, schema.StepFailed, sctx.Steps["root.0"].Status)
	assert.Equal(t, schema.StepFailed, sctx.Steps["root"].Status)
}

func TestRunSubprocess_ReturnsWinningOutputWithoutPersisting(t *testing.T) {
	client := &scriptedClient{responses: []string{"the answer"}}
	repo := newFakeRepo()
	domain := testDomain(schema.StepGranularity{})
	r := newTestRunner(domain, client, repo, &fakeAppender{}, Options{})

	sctx, err := r.RunSubprocess(context.Background(), "what is it", "test", "openai", "gpt")
	require.NoError(t, err)
	require.NotNil(t, sctx)

	assert.Equal(t, "the answer", sctx.Steps["root"].WinningOutput)
	assert.Equal(t, 0, repo.saveCalls, "subprocess mode must not checkpoint")
}

func TestRunSubprocess_LowMarginPausesInsteadOfDeciding(t *testing.T) {
	client := &scriptedClient{responses: []string{"candidate A", "a different answer"}}
	repo := newFakeRepo()
	domain := testDomain(schema.StepGranularity{})
	domain.Agents[schema.AgentSolver] = schema.AgentConfig{PromptTemplate: "solve", Samples: 2}
	r := newTestRunner(domain, client, repo, &fakeAppender{}, Options{HumanLowMarginThreshold: 1})

	sctx, err := r.RunSubprocess(context.Background(), "what is it", "test", "openai", "gpt")
	require.NoError(t, err)
	require.NotNil(t, sctx)

	assert.Equal(t, schema.SessionPaused, sctx.Status)
	require.NotNil(t, sctx.WaitState)
	assert.Equal(t, schema.TriggerLowMargin, sctx.WaitState.Trigger)
}

func TestRunner_ResumeReplaysSameLowMarginDecisionUntilInputArrives(t *testing.T) {
	dir := t.TempDir()
	// [0] the root's sole decomposition candidate (one child). A single
	// sample gives the root's decomposition vote a margin of 1, at the
	// low-margin threshold of 1, so the root pauses there and the solver
	// responses [1] and [2] are never requested.
	client := &scriptedClient{responses: []string{"- do it", "candidate A", "candidate B"}}
	repo := newFakeRepo()
	domain := testDomain(schema.StepGranularity{MaxDepth: 1})
	domain.Agents[schema.AgentSolver] = schema.AgentConfig{PromptTemplate: "solve", Samples: 2}
	r := newTestRunner(domain, client, repo, &fakeAppender{}, Options{WorkspaceRoot: dir, HumanLowMarginThreshold: 1})

	sctx, err := r.Start(context.Background(), "build the thing", "test", "openai", "gpt")
	require.NoError(t, err)
	require.Equal(t, schema.SessionPaused, sctx.Status)
	require.NotNil(t, sctx.WaitState)
	pausedStepID := sctx.WaitState.StepID
	require.Len(t, sctx.Queue, 1)
	assert.Equal(t, pausedStepID, sctx.Queue[0].StepID)

	resumed, err := r.Resume(context.Background(), sctx.SessionID)
	require.NoError(t, err)
	// the same candidate is still stored on the step, so voting
	// again reproduces the identical low-margin result and re-pauses on
	// the same step rather than silently advancing past it.
	assert.Equal(t, schema.SessionPaused, resumed.Status)
	require.NotNil(t, resumed.WaitState)
	assert.Equal(t, pausedStepID, resumed.WaitState.StepID)
}

func TestRunner_StatusLoadsWithoutMutating(t *testing.T) {
	dir := t.TempDir()
	client := &scriptedClient{responses: []string{
		"- only part",
		`<file path="out.txt">ok</file>`,
	}}
	repo := newFakeRepo()
	domain := testDomain(schema.StepGranularity{MaxDepth: 1})
	r := newTestRunner(domain, client, repo, &fakeAppender{}, Options{WorkspaceRoot: dir})

	started, err := r.Start(context.Background(), "build the thing", "test", "openai", "gpt")
	require.NoError(t, err)

	status, err := r.Status(context.Background(), started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, started.Status, status.Status)
	assert.Equal(t, started.SessionID, status.SessionID)
}

func TestRunner_StatusUnknownSessionReturnsNotFound(t *testing.T) {
	r := newTestRunner(testDomain(schema.StepGranularity{}), &scriptedClient{}, newFakeRepo(), &fakeAppender{}, Options{})
	_, err := r.Status(context.Background(), "does-not-exist")
	require.Error(t, err)
	merr, ok := err.(*schema.MicrofactoryError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, merr.Code)
}
