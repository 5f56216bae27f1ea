package harness

// Trace event types.
const (
	EventMutation = "mutation"
	EventRun      = "run"
)

// TraceEvent records one executed step.
//
// Entities are rendered by name (or "#index.generation" when unnamed) so
// traces are stable across runs.
type TraceEvent struct {
	Type   string   `json:"type"` // "mutation" or "run"
	Seq    int64    `json:"seq"`  // 1-based step index
	Op     string   `json:"op,omitempty"`
	Entity string   `json:"entity,omitempty"`
	Name   string   `json:"name,omitempty"`
	Ids    []string `json:"ids,omitempty"`
	Query  string   `json:"query,omitempty"`
	Rows   []string `json:"rows,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation held, no step
	// failed unexpectedly, and both cache kinds agreed on every run.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Runs counts query runs, both cache kinds included.
	Runs int `json:"runs"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddMutationTrace adds a mutation step to the trace.
func (r *Result) AddMutationTrace(ev TraceEvent) {
	ev.Type = EventMutation
	r.Trace = append(r.Trace, ev)
}

// AddRunTrace adds a query run step to the trace.
func (r *Result) AddRunTrace(query string, rows []string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:  EventRun,
		Seq:   seq,
		Query: query,
		Rows:  rows,
	})
}
