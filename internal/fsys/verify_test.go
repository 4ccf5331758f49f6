package fsys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandVerifier_Passes(t *testing.T) {
	v := NewCommandVerifier(5*time.Second, "")
	result, err := v.Run(context.Background(), "exit 0", "")
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 0, result.ExitCode)
}

func TestCommandVerifier_Fails(t *testing.T) {
	v := NewCommandVerifier(5*time.Second, "")
	result, err := v.Run(context.Background(), "exit 3", "")
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, 3, result.ExitCode)
}

func TestCommandVerifier_CapturesOutput(t *testing.T) {
	v := NewCommandVerifier(5*time.Second, "")
	result, err := v.Run(context.Background(), "echo out; echo err 1>&2", "")
	require.NoError(t, err)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
}

func TestCommandVerifier_TimeoutIsTreatedAsFailure(t *testing.T) {
	v := NewCommandVerifier(50*time.Millisecond, "")
	result, err := v.Run(context.Background(), "sleep 5", "")
	require.NoError(t, err)
	assert.False(t, result.Passed)
}

func TestCommandVerifier_DetailFilterExtractsJSONField(t *testing.T) {
	v := NewCommandVerifier(5*time.Second, ".reason")
	result, err := v.Run(context.Background(), `echo '{"ok":false,"reason":"assertion failed on line 4"}'; exit 1`, "")
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, "assertion failed on line 4", result.Detail)
}

func TestCommandVerifier_RunsInGivenDirectory(t *testing.T) {
	dir := t.TempDir()
	v := NewCommandVerifier(5*time.Second, "")
	result, err := v.Run(context.Background(), "pwd", dir)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, dir)
}
