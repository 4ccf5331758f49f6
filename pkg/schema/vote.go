package schema

// FlagVerdict is the result of a single RedFlagger evaluating one
// candidate. A zero-value FlagVerdict is Ok.
type FlagVerdict struct {
	Flagged bool
	Reason  string
}

// Ok is the accepted verdict.
func Ok() FlagVerdict { return FlagVerdict{} }

// Flag builds a rejecting verdict carrying reason.
func Flag(reason string) FlagVerdict { return FlagVerdict{Flagged: true, Reason: reason} }

// AnnotatedCandidate is one ensemble member returned by the sampler,
// already passed through the agent's red-flag pipeline.
type AnnotatedCandidate struct {
	Text     string
	Accepted bool
	Reason   string
}

// VoteResult is the output of the voting engine.
type VoteResult struct {
	Winner *string        `json:"winner,omitempty"`
	Margin int            `json:"margin"`
	Tally  map[string]int `json:"tally"`
}
