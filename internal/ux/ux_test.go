package ux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionHeaderContainsFields(t *testing.T) {
	out := SessionHeader("sess-1", "completed", "refactor", "openai", "gpt-5")
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "domain=refactor")
	assert.Contains(t, out, "provider=openai")
	assert.Contains(t, out, "model=gpt-5")
}

func TestWaitStateContainsFields(t *testing.T) {
	out := WaitState("step-2", "low_margin", "margin 1 <= threshold 1")
	assert.Contains(t, out, "step-2")
	assert.Contains(t, out, "low_margin")
	assert.Contains(t, out, "margin 1 <= threshold 1")
}

func TestStepIndentsByDepth(t *testing.T) {
	shallow := Step("root", "Done", 0, "top level")
	deep := Step("root.0.1", "Solving", 2, "nested")
	assert.True(t, strings.HasPrefix(shallow, "["))
	assert.True(t, strings.HasPrefix(deep, "    ["))
	assert.Contains(t, deep, "root.0.1")
	assert.Contains(t, deep, "nested")
}

func TestSessionRowIsTabSeparated(t *testing.T) {
	row := SessionRow("sess-1", "failed", "refactor", "anthropic")
	parts := strings.Split(row, "\t")
	assert.Len(t, parts, 4)
	assert.Equal(t, "sess-1", parts[0])
}

func TestStatusStyleGroupsByOutcome(t *testing.T) {
	assert.Equal(t, styleDone, statusStyle("completed"))
	assert.Equal(t, styleDone, statusStyle("Done"))
	assert.Equal(t, styleFailed, statusStyle("failed"))
	assert.Equal(t, styleFailed, statusStyle("Failed"))
	assert.Equal(t, stylePending, statusStyle("paused"))
	assert.Equal(t, stylePending, statusStyle("AwaitingSolutionVote"))
	assert.Equal(t, styleMuted, statusStyle("running"))
}
