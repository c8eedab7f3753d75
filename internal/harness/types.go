package harness

// CycleSummary is what one scripted cycle reported.
type CycleSummary struct {
	Outcome  string `json:"outcome,omitempty"`
	Replayed int    `json:"replayed"`
	Status   string `json:"status,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every cycle expectation and assertion held.
	Pass bool `json:"pass"`

	// Lines is the view recording, one call per line.
	Lines []string `json:"lines"`

	// Cycles holds one summary per scripted cycle.
	Cycles []CycleSummary `json:"cycles"`

	// FinalStatus and Cursor are the tracked resource state after the last cycle.
	FinalStatus string `json:"final_status"`
	Cursor      int    `json:"cursor"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Lines:  []string{},
		Cycles: []CycleSummary{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
