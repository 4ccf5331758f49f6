package redflag

import (
	"fmt"

	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// BuildOptions supplies the ports the network-reaching flagger kinds
// (llm_critique) need; other kinds ignore it.
type BuildOptions struct {
	Renderer ports.PromptRenderer
	Client   ports.LlmClient
	APIKey   string
}

// Build compiles a Pipeline from an ordered list of RedFlaggerConfig
// entries.
func Build(configs []schema.RedFlaggerConfig, opts BuildOptions) (*Pipeline, error) {
	flaggers := make([]ports.RedFlagger, 0, len(configs))
	for _, cfg := range configs {
		f, err := buildOne(cfg, opts)
		if err != nil {
			return nil, fmt.Errorf("red_flagger %q: %w", cfg.Type, err)
		}
		flaggers = append(flaggers, f)
	}
	return New(flaggers...), nil
}

func buildOne(cfg schema.RedFlaggerConfig, opts BuildOptions) (ports.RedFlagger, error) {
	switch cfg.Type {
	case "length":
		maxTokens, _ := cfg.Params["max_tokens"].(int)
		if maxTokens == 0 {
			if f, ok := cfg.Params["max_tokens"].(float64); ok {
				maxTokens = int(f)
			}
		}
		return NewLengthFlagger(maxTokens), nil
	case "syntax":
		lang, _ := cfg.Params["language"].(string)
		extractXML, _ := cfg.Params["extract_xml"].(bool)
		return NewSyntaxFlagger(lang, extractXML), nil
	case "llm_critique":
		model, _ := cfg.Params["model"].(string)
		promptTemplate, _ := cfg.Params["prompt_template"].(string)
		marker, _ := cfg.Params["negative_marker"].(string)
		if opts.Renderer == nil || opts.Client == nil {
			return nil, fmt.Errorf("llm_critique requires a renderer and llm client")
		}
		return NewLLMCritiqueFlagger(model, promptTemplate, marker, opts.Renderer, opts.Client, opts.APIKey), nil
	case "expression":
		expr, _ := cfg.Params["expr"].(string)
		return NewExpressionFlagger(expr)
	default:
		return nil, fmt.Errorf("unknown red_flagger type %q", cfg.Type)
	}
}
