package llmclient

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/microfactory-run/microfactory/internal/ports"
)

func providerError(msg string) *ports.LlmError {
	return &ports.LlmError{Kind: ports.LlmErrProvider, Message: msg}
}

// classifyHTTPStatus maps a provider HTTP status code onto the LlmErrorKind
// taxonomy: Auth (401/403), RateLimited (429), Transport (network/5xx,
// retryable), Provider (everything else, fatal).
func classifyHTTPStatus(status int, code, message string, cause error) *ports.LlmError {
	kind := ports.LlmErrProvider
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ports.LlmErrAuth
	case status == http.StatusTooManyRequests:
		kind = ports.LlmErrRateLimited
	case status >= 500 || status == 0:
		kind = ports.LlmErrTransport
	}
	return &ports.LlmError{Kind: kind, Code: code, Message: message, Cause: cause}
}

// classifyTransportErr handles errors that never reached the provider
// (dial failures, context deadlines) as Transport, matching
// internal/engine.IsRetryableError's network-error heuristics.
func classifyTransportErr(err error) *ports.LlmError {
	if errors.Is(err, context.Canceled) {
		return &ports.LlmError{Kind: ports.LlmErrCanceled, Message: err.Error(), Cause: err}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection refused", "connection reset", "i/o timeout", "eof", "deadline exceeded", "no such host"} {
		if strings.Contains(msg, p) {
			return &ports.LlmError{Kind: ports.LlmErrTransport, Message: err.Error(), Cause: err}
		}
	}
	return &ports.LlmError{Kind: ports.LlmErrProvider, Message: err.Error(), Cause: err}
}
