package runner

import (
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/redflag"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// buildFlaggers compiles one agent kind's red-flag pipeline,
// falling back to the domain-wide list when the agent has none of its own.
func buildFlaggers(cfg schema.AgentConfig, domainCfg *schema.DomainConfig, renderer ports.PromptRenderer, client ports.LlmClient, apiKey string) (ports.RedFlagger, error) {
	configs := cfg.RedFlaggers
	if len(configs) == 0 {
		configs = domainCfg.RedFlaggers
	}
	return redflag.Build(configs, redflag.BuildOptions{Renderer: renderer, Client: client, APIKey: apiKey})
}
