// Package llmclient implements the LlmClient port against the
// four providers the CLI surface names: openai, anthropic, gemini, grok.
// Uses sashabaranov/go-openai, the stainless anthropic-sdk-go, and
// google.golang.org/genai as the respective provider SDKs, narrowed to
// the single Complete(options, prompt) → (string, error) shape needed
// here instead of their richer multi-turn/tool-calling surfaces. grok is
// wired through the OpenAI adapter with a custom base URL since xAI's
// API is OpenAI-wire-compatible.
package llmclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/microfactory-run/microfactory/internal/ports"
)

// providerClient is the narrow per-provider completion method every
// sub-adapter implements.
type providerClient interface {
	complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error)
}

// Client dispatches Complete calls to the sub-adapter matching
// opts.Provider, constructing and caching one sub-client per
// (provider, api key) pair encountered. Safe for concurrent calls
//: all mutable state is behind a mutex and sub-adapters
// are themselves safe for concurrent use per their SDKs' documentation.
type Client struct {
	mu      sync.Mutex
	clients map[string]providerClient
}

var _ ports.LlmClient = (*Client)(nil)

// New returns a Client with no providers yet constructed; each is built
// lazily on first use, keyed by provider+api key so a process serving
// several sessions with different credentials for the same provider
// never shares state across them.
func New() *Client {
	return &Client{clients: make(map[string]providerClient)}
}

// Complete implements ports.LlmClient.
func (c *Client) Complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	pc, err := c.providerFor(opts)
	if err != nil {
		return "", err
	}
	return pc.complete(ctx, opts, prompt)
}

func (c *Client) providerFor(opts ports.LlmOptions) (providerClient, error) {
	key := opts.Provider + "|" + opts.APIKey
	c.mu.Lock()
	defer c.mu.Unlock()

	if pc, ok := c.clients[key]; ok {
		return pc, nil
	}

	var (
		pc  providerClient
		err error
	)
	switch opts.Provider {
	case "openai":
		pc, err = newOpenAIAdapter(opts.APIKey, "")
	case "grok":
		pc, err = newOpenAIAdapter(opts.APIKey, grokBaseURL)
	case "anthropic":
		pc, err = newAnthropicAdapter(opts.APIKey)
	case "gemini":
		pc, err = newGeminiAdapter(opts.APIKey)
	default:
		return nil, providerError(fmt.Sprintf("unknown llm provider %q", opts.Provider))
	}
	if err != nil {
		return nil, err
	}
	c.clients[key] = pc
	return pc, nil
}
