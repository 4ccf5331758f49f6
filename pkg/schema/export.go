package schema

// ExportedCandidate mirrors Candidate in the stable session JSON export
// schema: Preview is intentionally omitted from the wire shape,
// which names only text/accepted/reason.
type ExportedCandidate struct {
	Text     string `json:"text"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ExportedStep mirrors Step in the stable session JSON export schema.
type ExportedStep struct {
	StepID        string               `json:"step_id"`
	ParentID      string               `json:"parent_id,omitempty"`
	Depth         int                  `json:"depth"`
	Status        StepStatus           `json:"status"`
	Description   string               `json:"description"`
	Candidates    []ExportedCandidate  `json:"candidates,omitempty"`
	WinningOutput string               `json:"winning_output,omitempty"`
	ChildIDs      []string             `json:"child_ids"`
}

// ExportedMetrics mirrors Metrics in the stable session JSON export schema.
type ExportedMetrics struct {
	Samples        int     `json:"samples"`
	Resamples      int     `json:"resamples"`
	RedFlags       int     `json:"red_flags"`
	VoteMarginAvg  float64 `json:"vote_margin_avg"`
	DurationMs     int64   `json:"duration_ms"`
}

// ExportedWaitState mirrors WaitState in the stable session JSON export
// schema.
type ExportedWaitState struct {
	StepID  string `json:"step_id"`
	Trigger string `json:"trigger"`
	Details string `json:"details"`
}

// SessionExport is the stable JSON shape consumed by `status --json` and
// the HTTP surface.
type SessionExport struct {
	SessionID string              `json:"session_id"`
	Status    SessionStatus       `json:"status"`
	Domain    string              `json:"domain"`
	Provider  string              `json:"provider"`
	Model     string              `json:"model"`
	WaitState *ExportedWaitState  `json:"wait_state,omitempty"`
	Metrics   ExportedMetrics     `json:"metrics"`
	Steps     []ExportedStep      `json:"steps"`
}

// Export converts a live Context into its stable wire representation.
// Step order is not guaranteed by map iteration; callers needing a stable
// ordering should sort ExportedStep.StepID after calling this.
func (c *Context) Export() SessionExport {
	exp := SessionExport{
		SessionID: c.SessionID,
		Status:    c.Status,
		Domain:    c.Domain,
		Provider:  c.Provider,
		Model:     c.Model,
		Metrics: ExportedMetrics{
			Samples:       c.Metrics.Samples,
			Resamples:     c.Metrics.Resamples,
			RedFlags:      c.Metrics.RedFlags,
			VoteMarginAvg: c.Metrics.VoteMarginAvg(),
			DurationMs:    c.Metrics.TotalDurationMs(),
		},
	}
	if c.WaitState != nil {
		exp.WaitState = &ExportedWaitState{
			StepID:  c.WaitState.StepID,
			Trigger: string(c.WaitState.Trigger),
			Details: c.WaitState.Details,
		}
	}
	for _, step := range c.Steps {
		es := ExportedStep{
			StepID:        step.StepID,
			ParentID:      step.ParentID,
			Depth:         step.Depth,
			Status:        step.Status,
			Description:   step.Description,
			WinningOutput: step.WinningOutput,
			ChildIDs:      step.ChildIDs,
		}
		for _, cand := range step.Candidates {
			es.Candidates = append(es.Candidates, ExportedCandidate{
				Text: cand.Text, Accepted: cand.Accepted, Reason: cand.Reason,
			})
		}
		exp.Steps = append(exp.Steps, es)
	}
	return exp
}
