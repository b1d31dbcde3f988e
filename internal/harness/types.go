package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step      int      `json:"step"`
	Type      string   `json:"type"` // "add" or "query"
	Query     string   `json:"query,omitempty"`
	Variables []string `json:"variables,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	Count     int      `json:"count"`
	Error     string   `json:"error,omitempty"` // error kind
}

// Event types.
const (
	EventAdd   = "add"
	EventQuery = "query"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Strata is the number of strata of the prepared program.
	Strata int `json:"strata"`

	// Model holds the final model by predicate ("edge/2"), rows in term
	// order.
	Model map[string][][]any `json:"model"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Model:  make(map[string][][]any),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
