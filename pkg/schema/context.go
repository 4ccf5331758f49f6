package schema

// Candidate is one sampled ensemble member together with its red-flag
// verdict. Text carries the full sample and is what snapshots and the
// export serialize; Preview is a copy bounded to 160 bytes that is not
// serialized. History entries keep their own bounded preview instead of
// the full text.
type Candidate struct {
	Text     string `json:"text"`
	Preview  string `json:"-"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

const candidatePreviewLen = 160

// NewCandidate builds a Candidate with its preview pre-computed.
func NewCandidate(text string, accepted bool, reason string) Candidate {
	return Candidate{Text: text, Preview: truncatePreview(text), Accepted: accepted, Reason: reason}
}

func truncatePreview(s string) string {
	if len(s) <= candidatePreviewLen {
		return s
	}
	return s[:candidatePreviewLen]
}

// WaitState is non-empty iff the session is suspended awaiting human
// input.
type WaitState struct {
	StepID  string      `json:"step_id"`
	Trigger WaitTrigger `json:"trigger"`
	Details string      `json:"details"`
}

// Step is a single node of the decomposition tree.
type Step struct {
	StepID         string      `json:"step_id"`
	ParentID       string      `json:"parent_id,omitempty"`
	Depth          int         `json:"depth"`
	Description    string      `json:"description"`
	Status         StepStatus  `json:"status"`
	Candidates     []Candidate `json:"candidates,omitempty"`
	WinningOutput  string      `json:"winning_output,omitempty"`
	ChildIDs       []string    `json:"child_ids,omitempty"`
	VerifierOutput string      `json:"verifier_output,omitempty"`
}

// WorkItem describes one item of pending work on the runner's queue.
// Phase names the task kernel that should handle the step next.
type WorkItem struct {
	StepID string `json:"step_id"`
	Phase  Phase  `json:"phase"`
}

// Phase selects which task kernel handles a WorkItem.
type Phase string

const (
	PhaseDecompose       Phase = "decompose"
	PhaseDecompositionVote Phase = "decomposition_vote"
	PhaseSolve           Phase = "solve"
	PhaseSolutionVote    Phase = "solution_vote"
	PhaseApplyVerify     Phase = "apply_verify"
)

// Metrics aggregates per-session and per-step counters. VoteMargins,
// EffectiveK, and DurationMsByStep are persisted (not wire-omitted) so
// that a checkpoint/reload round-trip preserves the history Export()
// computes vote_margin_avg/duration_ms from.
type Metrics struct {
	Samples          int              `json:"samples"`
	Resamples        int              `json:"resamples"`
	RedFlags         int              `json:"red_flags"`
	VoteMargins      []int            `json:"vote_margins,omitempty"`
	EffectiveK       map[string]int   `json:"effective_k,omitempty"`
	DurationMsByStep map[string]int64 `json:"duration_ms_by_step,omitempty"`
}

// VoteMarginAvg computes the average of every recorded vote margin, or 0
// if none have been recorded yet.
func (m *Metrics) VoteMarginAvg() float64 {
	if len(m.VoteMargins) == 0 {
		return 0
	}
	var sum int
	for _, v := range m.VoteMargins {
		sum += v
	}
	return float64(sum) / float64(len(m.VoteMargins))
}

// TotalDurationMs sums every recorded per-step duration.
func (m *Metrics) TotalDurationMs() int64 {
	var total int64
	for _, d := range m.DurationMsByStep {
		total += d
	}
	return total
}

// RecordDuration attaches a wall-clock duration (as read from the Clock
// port) to a step, for later export as metrics.duration_ms.
func (m *Metrics) RecordDuration(stepID string, ms int64) {
	if m.DurationMsByStep == nil {
		m.DurationMsByStep = make(map[string]int64)
	}
	m.DurationMsByStep[stepID] += ms
}

// HistoryEntry is a bounded record of a materialized candidate proposal,
// kept for inspection.
type HistoryEntry struct {
	StepID    string `json:"step_id"`
	Phase     Phase  `json:"phase"`
	Preview   string `json:"preview"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}

const maxHistoryEntries = 500

// Context is the single mutable value that represents an entire running
// session. All state needed to resume execution lives inside
// it; it is checkpointed after every transition and must round-trip
// byte-for-byte through the SessionRepository port.
type Context struct {
	SessionID string          `json:"session_id"`
	Prompt    string          `json:"prompt"`
	Domain    string          `json:"domain"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Status    SessionStatus   `json:"status"`
	Steps     map[string]*Step `json:"steps"`
	Queue     []WorkItem      `json:"queue"`
	Metrics   Metrics         `json:"metrics"`
	WaitState *WaitState      `json:"wait_state,omitempty"`
	History   []HistoryEntry  `json:"history,omitempty"`
}

// NewContext creates an empty Context ready to receive a root step.
func NewContext(sessionID, prompt, domain, provider, model string) *Context {
	return &Context{
		SessionID: sessionID,
		Prompt:    prompt,
		Domain:    domain,
		Provider:  provider,
		Model:     model,
		Status:    SessionRunning,
		Steps:     make(map[string]*Step),
		Metrics:   Metrics{EffectiveK: make(map[string]int), DurationMsByStep: make(map[string]int64)},
	}
}

// Enqueue appends a WorkItem to the tail of the queue, preserving FIFO
// order and the invariant that steps already Done or Failed never sit on
// the queue.
func (c *Context) Enqueue(item WorkItem) {
	if step, ok := c.Steps[item.StepID]; ok && step.Status.IsTerminal() {
		return
	}
	c.Queue = append(c.Queue, item)
}

// Dequeue pops the head of the queue, or returns ok=false if empty.
func (c *Context) Dequeue() (WorkItem, bool) {
	if len(c.Queue) == 0 {
		return WorkItem{}, false
	}
	item := c.Queue[0]
	c.Queue = c.Queue[1:]
	return item, true
}

// AppendHistory records a candidate proposal, trimming the oldest entries
// once the bounded log fills up.
func (c *Context) AppendHistory(entry HistoryEntry) {
	c.History = append(c.History, entry)
	if len(c.History) > maxHistoryEntries {
		c.History = c.History[len(c.History)-maxHistoryEntries:]
	}
}

// AllChildrenTerminal reports whether every child of step is Done or
// Failed, used by the runner to decide when a Decomposed step itself
// becomes Done.
func (c *Context) AllChildrenTerminal(step *Step) bool {
	for _, childID := range step.ChildIDs {
		child, ok := c.Steps[childID]
		if !ok || !child.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// AnyChildFailed reports whether any child of step ended Failed.
func (c *Context) AnyChildFailed(step *Step) bool {
	for _, childID := range step.ChildIDs {
		if child, ok := c.Steps[childID]; ok && child.Status == StepFailed {
			return true
		}
	}
	return false
}
