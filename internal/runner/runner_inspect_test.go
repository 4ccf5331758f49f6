package runner

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/microfactory-run/microfactory/internal/kernels"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

func newInspectRunner(t *testing.T, mode string) (*Runner, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(Deps{
		Logger:  logger,
		Options: Options{Inspect: mode},
	})
	return r, &buf
}

func TestInspect_DisabledByDefault(t *testing.T) {
	r, buf := newInspectRunner(t, "")
	step := &schema.Step{StepID: "root", Status: schema.StepDone}

	r.inspect("s1", step, kernels.NextAction{Kind: kernels.ActionDone})

	assert.Empty(t, buf.String())
}

func TestInspect_OpsLogsActionKind(t *testing.T) {
	r, buf := newInspectRunner(t, "ops")
	step := &schema.Step{StepID: "root", Status: schema.StepSolving}

	r.inspect("s1", step, kernels.NextAction{Kind: kernels.ActionContinue})

	out := buf.String()
	assert.Contains(t, out, "inspect:ops")
	assert.Contains(t, out, "action=continue")
}

func TestInspect_PayloadsLogsFullCandidateText(t *testing.T) {
	r, buf := newInspectRunner(t, "payloads")
	long := strings.Repeat("a very long candidate body that would be truncated in a preview ", 3)
	step := &schema.Step{
		StepID: "root",
		Candidates: []schema.Candidate{
			schema.NewCandidate(long, true, ""),
		},
	}

	r.inspect("s1", step, kernels.NextAction{})

	assert.Contains(t, buf.String(), long)
}

func TestInspect_MessagesLogsWinningOutput(t *testing.T) {
	r, buf := newInspectRunner(t, "messages")
	step := &schema.Step{StepID: "root", WinningOutput: "the final answer"}

	r.inspect("s1", step, kernels.NextAction{})

	assert.Contains(t, buf.String(), "the final answer")
}

func TestInspect_FilesLogsEveryPatchedPath(t *testing.T) {
	r, buf := newInspectRunner(t, "files")
	step := &schema.Step{
		StepID:        "root",
		WinningOutput: `<file path="a.txt">one</file><file path="b.txt">two</file>`,
	}

	r.inspect("s1", step, kernels.NextAction{})

	out := buf.String()
	assert.Contains(t, out, "path=a.txt")
	assert.Contains(t, out, "path=b.txt")
}
