package fsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

func TestPathGuard_Resolve_Valid(t *testing.T) {
	g := NewPathGuard("/workspace")
	abs, err := g.Resolve("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "/workspace/src/main.go", abs)
}

func TestPathGuard_Resolve_RejectsAbsolute(t *testing.T) {
	g := NewPathGuard("/workspace")
	_, err := g.Resolve("/etc/passwd")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.MicrofactoryError).Code)
}

func TestPathGuard_Resolve_RejectsParentTraversal(t *testing.T) {
	g := NewPathGuard("/workspace")
	_, err := g.Resolve("../secrets.env")
	require.Error(t, err)

	_, err = g.Resolve("a/../../b")
	require.Error(t, err)
}

func TestPathGuard_Resolve_RejectsGitComponent(t *testing.T) {
	g := NewPathGuard("/workspace")
	_, err := g.Resolve(".git/config")
	require.Error(t, err)

	_, err = g.Resolve("nested/.git/hooks/pre-commit")
	require.Error(t, err)
}

func TestPathGuard_Resolve_RejectsEmpty(t *testing.T) {
	g := NewPathGuard("/workspace")
	_, err := g.Resolve("")
	require.Error(t, err)
}

func TestPathGuard_Resolve_RejectsNullByte(t *testing.T) {
	g := NewPathGuard("/workspace")
	_, err := g.Resolve("foo\x00bar")
	require.Error(t, err)
}
