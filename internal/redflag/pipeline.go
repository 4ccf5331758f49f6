// Package redflag implements the ordered validator chain applied to each
// ensemble candidate before it reaches the voting engine.
package redflag

import "github.com/microfactory-run/microfactory/internal/ports"

// Pipeline is an ordered list of RedFlagger instances. Evaluate short
// circuits on the first Flag(reason), evaluating each flagger in
// sequence. Pipeline composition is per-agent: a solver and a
// decomposition agent may carry entirely different checks.
type Pipeline struct {
	flaggers []ports.RedFlagger
}

// New builds a Pipeline from an ordered list of flaggers.
func New(flaggers ...ports.RedFlagger) *Pipeline {
	return &Pipeline{flaggers: flaggers}
}

// Evaluate runs candidate through every flagger in order, stopping at the
// first flag.
func (p *Pipeline) Evaluate(candidate string) (flagged bool, reason string) {
	return p.EvaluateStep(candidate, "", 0)
}

// EvaluateStep implements ports.StepAwareRedFlagger: same ordered chain
// as Evaluate, but forwards stepID/depth to every sub-flagger that is
// itself step-aware (e.g. an expression flagger), instead of discarding
// them for the whole pipeline just because one link doesn't need them.
func (p *Pipeline) EvaluateStep(candidate, stepID string, depth int) (flagged bool, reason string) {
	for _, f := range p.flaggers {
		if stepAware, ok := f.(ports.StepAwareRedFlagger); ok {
			flagged, reason = stepAware.EvaluateStep(candidate, stepID, depth)
		} else {
			flagged, reason = f.Evaluate(candidate)
		}
		if flagged {
			return true, reason
		}
	}
	return false, ""
}
