// Package template implements the PromptRenderer port over
// text/template. A domain config's prompt_template field holds the literal
// template text, so Render treats its templateName argument as
// that text directly rather than a lookup key into some template
// directory, the same text/template-against-a-data-struct approach a
// prompt builder would use; adapted here to take the template text as
// input rather than compiling it once at
// construction, since each domain supplies its own.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/microfactory-run/microfactory/internal/ports"
)

// Renderer implements ports.PromptRenderer, caching parsed templates by
// their source text so a domain's prompt_template is only parsed once no
// matter how many times a step re-renders it.
type Renderer struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

var _ ports.PromptRenderer = (*Renderer)(nil)

// New returns an empty Renderer.
func New() *Renderer {
	return &Renderer{cache: make(map[string]*template.Template)}
}

// Render parses templateText (the AgentConfig.PromptTemplate or
// RedFlaggerConfig.PromptTemplate value) if not already cached, then
// executes it against data. Keys in data absent from the template, or
// referenced but not present in the map, render as "" rather than erroring
// or printing "<no value>": missingkey=zero on a map[string]string means a
// missing lookup yields the zero value of string.
func (r *Renderer) Render(templateText string, data map[string]any) (string, error) {
	tmpl, err := r.parsed(templateText)
	if err != nil {
		return "", fmt.Errorf("template: parse: %w", err)
	}

	strData := make(map[string]string, len(data))
	for k, v := range data {
		strData[k] = stringify(v)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, strData); err != nil {
		return "", fmt.Errorf("template: execute: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) parsed(text string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tmpl, ok := r.cache[text]; ok {
		return tmpl, nil
	}
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, err
	}
	r.cache[text] = tmpl
	return tmpl, nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
