package redflag

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// ExpressionFlagger evaluates a CEL boolean expression against
// {candidate, step, depth} and flags when it evaluates true.
type ExpressionFlagger struct {
	program cel.Program
	source  string
}

// NewExpressionFlagger compiles expr once against an environment exposing
// candidate (string), step (string), and depth (int).
func NewExpressionFlagger(expr string) (*ExpressionFlagger, error) {
	env, err := cel.NewEnv(
		cel.Variable("candidate", cel.StringType),
		cel.Variable("step", cel.StringType),
		cel.Variable("depth", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program for %q: %w", expr, err)
	}
	return &ExpressionFlagger{program: prg, source: expr}, nil
}

// Eval evaluates the compiled expression with full context. EvaluateStep
// (the ports.StepAwareRedFlagger method) calls this with the sampler's
// real step id/depth; Evaluate (the plain ports.RedFlagger method) is a
// fallback wrapper with depth=0 and an empty step id, for pipelines
// composed without step context.
func (f *ExpressionFlagger) Eval(candidate, stepID string, depth int) (bool, string, error) {
	out, _, err := f.program.Eval(map[string]any{
		"candidate": candidate,
		"step":      stepID,
		"depth":     depth,
	})
	if err != nil {
		return false, "", fmt.Errorf("evaluate expression %q: %w", f.source, err)
	}
	flagged, ok := out.Value().(bool)
	if !ok {
		return false, "", fmt.Errorf("expression %q did not evaluate to bool", f.source)
	}
	if flagged {
		return true, fmt.Sprintf("expression %q matched", f.source), nil
	}
	return false, "", nil
}

func (f *ExpressionFlagger) Evaluate(candidate string) (bool, string) {
	return f.EvaluateStep(candidate, "", 0)
}

// EvaluateStep implements ports.StepAwareRedFlagger: the same check as
// Evaluate, but with the real step id/depth available to the expression.
func (f *ExpressionFlagger) EvaluateStep(candidate, stepID string, depth int) (bool, string) {
	flagged, reason, err := f.Eval(candidate, stepID, depth)
	if err != nil {
		return true, "expression evaluation error: " + err.Error()
	}
	return flagged, reason
}
