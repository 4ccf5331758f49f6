// Package validation validates domain configuration files before
// a session starts, using a JSON-Schema-based validator targeted at
// schema.DomainConfig instead of a generic workflow DAG definition.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// domainSchemaJSON is the JSON Schema for a domain configuration file.
// Embedded as a constant to avoid filesystem dependencies at runtime.
const domainSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://microfactory.dev/schemas/domain.json",
  "type": "object",
  "required": ["name", "agents"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "verifier": { "type": "string" },
    "applier": { "type": "string", "enum": ["overwrite_file", "patch_file"] },
    "agents": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/agent" }
    },
    "step_granularity": { "$ref": "#/$defs/granularity" },
    "red_flaggers": {
      "type": "array",
      "items": { "$ref": "#/$defs/red_flagger" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "agent": {
      "type": "object",
      "required": ["prompt_template", "model"],
      "properties": {
        "prompt_template": { "type": "string", "minLength": 1 },
        "model": { "type": "string", "minLength": 1 },
        "samples": { "type": "integer", "minimum": 1 },
        "k": { "type": "integer", "minimum": 1 },
        "red_flaggers": {
          "type": "array",
          "items": { "$ref": "#/$defs/red_flagger" }
        }
      },
      "additionalProperties": false
    },
    "granularity": {
      "type": "object",
      "properties": {
        "max_files": { "type": "integer", "minimum": 1 },
        "max_lines_changed": { "type": "integer", "minimum": 1 },
        "max_depth": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    },
    "red_flagger": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": { "type": "string", "enum": ["length", "syntax", "llm_critique", "expression"] }
      }
    }
  }
}`

// DomainSchemaValidator validates a schema.DomainConfig against the domain
// JSON Schema, plus structural checks the schema alone cannot express. Safe
// for concurrent use.
type DomainSchemaValidator struct {
	domainSchema *jsonschema.Schema

	mu       sync.RWMutex
	compiler *jsonschema.Compiler
	cache    map[string]*jsonschema.Schema
}

// NewDomainSchemaValidator creates a DomainSchemaValidator with the domain
// schema pre-compiled.
func NewDomainSchemaValidator() (*DomainSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(domainSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal domain schema: %w", err)
	}
	if err := c.AddResource("https://microfactory.dev/schemas/domain.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add domain schema resource: %w", err)
	}

	domSchema, err := c.Compile("https://microfactory.dev/schemas/domain.json")
	if err != nil {
		return nil, fmt.Errorf("compile domain schema: %w", err)
	}

	return &DomainSchemaValidator{
		domainSchema: domSchema,
		compiler:     newInputCompiler(),
		cache:        make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDomain validates a DomainConfig against the domain JSON Schema and
// checks structural invariants the schema alone cannot express (at least one
// agent of each required kind, non-empty red-flagger params for expression
// flaggers).
func (v *DomainSchemaValidator) ValidateDomain(cfg *schema.DomainConfig) error {
	if cfg == nil {
		return schema.NewError(schema.ErrCodeValidation, "domain config is nil")
	}

	doc, err := toJSONValue(cfg)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize domain config").WithCause(err)
	}

	if err := v.domainSchema.Validate(doc); err != nil {
		return toMicrofactoryError(err)
	}

	required := []schema.AgentKind{
		schema.AgentDecomposition,
		schema.AgentDecompositionDiscriminator,
		schema.AgentSolver,
		schema.AgentSolutionDiscriminator,
	}
	for _, kind := range required {
		if _, ok := cfg.Agents[kind]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "domain %q is missing required agent %q", cfg.Name, kind)
		}
	}

	for _, rf := range cfg.RedFlaggers {
		if rf.Type == "expression" {
			if _, ok := rf.Params["expr"]; !ok {
				return schema.NewErrorf(schema.ErrCodeValidation, "expression red flagger in domain %q is missing an 'expr' param", cfg.Name)
			}
		}
	}

	return nil
}

// ValidateInput validates arbitrary data against a JSON Schema provided as
// raw bytes, used to check LLM-produced structured output (e.g. verifier
// invocation payloads) against a declared shape. The schema is compiled and
// cached for subsequent calls with the same bytes.
func (v *DomainSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "input is nil")
	}
	if len(inputSchema) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}

	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize input").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toMicrofactoryError(err)
	}

	return nil
}

func (v *DomainSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("microfactory://input-schema/%d", len(v.cache))

	c := newInputCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newInputCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toMicrofactoryError converts a jsonschema.ValidationError into a
// MicrofactoryError with clear, actionable messages.
func toMicrofactoryError(err error) *schema.MicrofactoryError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations for agent-friendly error reporting.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
