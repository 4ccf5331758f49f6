package llmclient

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/microfactory-run/microfactory/internal/ports"
)

// grokBaseURL points the OpenAI-wire-compatible client at xAI's API
// instead of OpenAI's, the only difference the "grok" provider needs.
const grokBaseURL = "https://api.x.ai/v1"

type openAIAdapter struct {
	client *openai.Client
}

func newOpenAIAdapter(apiKey, baseURL string) (*openAIAdapter, error) {
	if apiKey == "" {
		return nil, &ports.LlmError{Kind: ports.LlmErrAuth, Message: "no api key configured"}
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIAdapter{client: openai.NewClientWithConfig(cfg)}, nil
}

func (a *openAIAdapter) complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", translateOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ports.LlmError{Kind: ports.LlmErrProvider, Message: "openai: no choices returned"}
	}
	return resp.Choices[0].Message.Content, nil
}

func translateOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			if s, ok := apiErr.Code.(string); ok {
				code = s
			}
		}
		return classifyHTTPStatus(apiErr.HTTPStatusCode, code, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyHTTPStatus(reqErr.HTTPStatusCode, "", reqErr.Error(), err)
	}
	return classifyTransportErr(err)
}
