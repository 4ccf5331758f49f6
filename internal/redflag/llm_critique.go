package redflag

import (
	"context"
	"strings"

	"github.com/microfactory-run/microfactory/internal/ports"
)

// LLMCritiqueFlagger renders a template with the candidate, calls the
// LLM, and flags iff the response begins with a configured negative
// marker.
type LLMCritiqueFlagger struct {
	Model          string
	PromptTemplate string
	NegativeMarker string
	Renderer       ports.PromptRenderer
	Client         ports.LlmClient
	APIKey         string
}

// NewLLMCritiqueFlagger builds an LLMCritiqueFlagger with the default
// "FLAG:" negative marker if none is configured.
func NewLLMCritiqueFlagger(model, promptTemplate, negativeMarker string, renderer ports.PromptRenderer, client ports.LlmClient, apiKey string) *LLMCritiqueFlagger {
	if negativeMarker == "" {
		negativeMarker = "FLAG:"
	}
	return &LLMCritiqueFlagger{
		Model: model, PromptTemplate: promptTemplate, NegativeMarker: negativeMarker,
		Renderer: renderer, Client: client, APIKey: apiKey,
	}
}

// Evaluate is not pure in the strict sense (it makes a network call), but
// it is deterministic-enough for the pipeline's purposes: this is the one
// flagger kind permitted to reach outward.
func (f *LLMCritiqueFlagger) Evaluate(candidate string) (bool, string) {
	rendered, err := f.Renderer.Render(f.PromptTemplate, map[string]any{"candidate": candidate})
	if err != nil {
		return true, "llm_critique: template render failed: " + err.Error()
	}
	resp, err := f.Client.Complete(context.Background(), ports.LlmOptions{Model: f.Model, APIKey: f.APIKey}, rendered)
	if err != nil {
		return true, "llm_critique: call failed: " + err.Error()
	}
	trimmed := strings.TrimSpace(resp)
	if strings.HasPrefix(trimmed, f.NegativeMarker) {
		return true, strings.TrimSpace(strings.TrimPrefix(trimmed, f.NegativeMarker))
	}
	return false, ""
}
