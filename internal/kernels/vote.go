package kernels

import (
	"fmt"

	"github.com/microfactory-run/microfactory/internal/voting"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// childStepID derives a deterministic, stable child ID from a parent ID
// and its position in the winning decomposition, keeping the flat
// step_id -> Step map free of collisions across
// resamples of the same parent.
func childStepID(parentID string, idx int) string {
	return fmt.Sprintf("%s.%d", parentID, idx)
}

// runVote reduces a step's stored candidates with the discriminator's k
// and reports whether the result clears the low-margin pause threshold.
func runVote(step *schema.Step, k, lowMarginThreshold int) (result schema.VoteResult, pause bool) {
	annotated := make([]schema.AnnotatedCandidate, 0, len(step.Candidates))
	for _, c := range step.Candidates {
		annotated = append(annotated, schema.AnnotatedCandidate{Text: c.Text, Accepted: c.Accepted, Reason: c.Reason})
	}
	result = voting.Reduce(annotated, k)
	if result.Winner == nil {
		return result, true
	}
	if lowMarginThreshold > 0 && result.Margin <= lowMarginThreshold {
		return result, true
	}
	return result, false
}

func lowMarginDetails(stage string, margin int) string {
	return fmt.Sprintf("Vote margin (%d) during %s fell below threshold", margin, stage)
}
