package llmclient

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/microfactory-run/microfactory/internal/ports"
)

const defaultAnthropicMaxTokens = 4096

type anthropicAdapter struct {
	client anthropic.Client
}

func newAnthropicAdapter(apiKey string) (*anthropicAdapter, error) {
	if apiKey == "" {
		return nil, &ports.LlmError{Kind: ports.LlmErrAuth, Message: "no api key configured"}
	}
	return &anthropicAdapter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

func (a *anthropicAdapter) complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", translateAnthropicErr(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func translateAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.StatusCode, "", apiErr.Error(), err)
	}
	return classifyTransportErr(err)
}
