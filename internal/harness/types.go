package harness

import (
	"sync"
)

// Trace event types.
const (
	EventAction   = "action"
	EventMutation = "mutation"
	EventCommit   = "commit"
)

// TraceEvent is one entry of a scenario trace: an action or mutation the
// harness sent, or a commit the reactor delivered.
type TraceEvent struct {
	Type  string         `json:"type"`
	Name  string         `json:"name,omitempty"` // action name
	Args  map[string]any `json:"args,omitempty"`
	Kind  string         `json:"kind,omitempty"` // commit kind
	State any            `json:"state,omitempty"`
	Seq   int64          `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step completed and every assertion held.
	Pass bool `json:"pass"`

	// ReactorID is the id of the reactor the scenario drove.
	ReactorID string `json:"reactor_id"`

	// Trace holds the sent actions and mutations and the delivered
	// commits, in delivery order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state, normalized to JSON values.
	State any `json:"state,omitempty"`

	mu sync.Mutex
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends to the trace. Safe from the main loop.
func (r *Result) AddEvent(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Trace = append(r.Trace, e)
}

// Commits returns the commit events of the trace.
func (r *Result) Commits() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventCommit {
			out = append(out, e)
		}
	}
	return out
}

// snapshot returns a copy of the trace.
func (r *Result) snapshot() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.Trace...)
}
