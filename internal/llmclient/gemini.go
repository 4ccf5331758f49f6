package llmclient

import (
	"context"

	"google.golang.org/genai"

	"github.com/microfactory-run/microfactory/internal/ports"
)

type geminiAdapter struct {
	client *genai.Client
}

func newGeminiAdapter(apiKey string) (*geminiAdapter, error) {
	if apiKey == "" {
		return nil, &ports.LlmError{Kind: ports.LlmErrAuth, Message: "no api key configured"}
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	return &geminiAdapter{client: client}, nil
}

func (a *geminiAdapter) complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var cfg *genai.GenerateContentConfig
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		cfg = &genai.GenerateContentConfig{}
		if opts.Temperature > 0 {
			t := float32(opts.Temperature)
			cfg.Temperature = &t
		}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(opts.MaxTokens)
		}
	}

	resp, err := a.client.Models.GenerateContent(ctx, opts.Model, contents, cfg)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &ports.LlmError{Kind: ports.LlmErrProvider, Message: "gemini: no candidates returned"}
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out, nil
}
