package kernels

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

func TestLlmOptions_SessionModelOverridesDomainConfig(t *testing.T) {
	cfg := schema.AgentConfig{Model: "gpt-4o"}

	opts := llmOptions(cfg, "openai", "gpt-5", "key-1")

	assert.Equal(t, "gpt-5", opts.Model)
	assert.Equal(t, "openai", opts.Provider)
	assert.Equal(t, "key-1", opts.APIKey)
}

func TestLlmOptions_FallsBackToDomainConfigWhenSessionModelUnset(t *testing.T) {
	cfg := schema.AgentConfig{Model: "gpt-4o"}

	opts := llmOptions(cfg, "openai", "", "key-1")

	assert.Equal(t, "gpt-4o", opts.Model)
}
