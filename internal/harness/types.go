package harness

// TraceEvent is one command and its reply.
type TraceEvent struct {
	Step       int            `json:"step"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
	Type       string         `json:"type"`
	Content    any            `json:"content"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every expect clause matched.
	Pass bool `json:"pass"`

	// Trace holds every command and reply in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains mismatch descriptions. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
