package redflag

import (
	"fmt"
	"strings"
)

// LengthFlagger flags candidates whose approximate token count — measured
// as whitespace-split words, a portable proxy — exceeds MaxTokens.
type LengthFlagger struct {
	MaxTokens int
}

// NewLengthFlagger builds a LengthFlagger, defaulting MaxTokens to 1 if a
// non-positive value is configured.
func NewLengthFlagger(maxTokens int) *LengthFlagger {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &LengthFlagger{MaxTokens: maxTokens}
}

func (f *LengthFlagger) Evaluate(candidate string) (bool, string) {
	n := len(strings.Fields(candidate))
	if n > f.MaxTokens {
		return true, fmt.Sprintf("candidate has %d words, exceeds max_tokens %d", n, f.MaxTokens)
	}
	return false, ""
}
