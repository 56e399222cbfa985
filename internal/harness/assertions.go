package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/reactor/internal/journal"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case EventCommit:
				fmt.Fprintf(&buf, "  [%d] commit #%d %s %s\n", i+1, event.Seq, event.Kind, compact(event.State))
			case EventAction:
				fmt.Fprintf(&buf, "  [%d] action %s %s\n", i+1, event.Name, compact(event.Args))
			default:
				fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, event.Type, compact(event.Args))
			}
		}
	}

	return buf.String()
}

// Normalize converts v into plain JSON values (maps, slices, float64,
// string, bool, nil) through the journal's canonical encoding, so Go
// states and YAML expectations compare alike.
func Normalize(v any) (any, error) {
	raw, err := journal.Canonical(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Matches reports whether actual contains expected: every key of an
// expected object must be present with a matching value, recursively.
// Arrays and scalars must be equal.
func Matches(actual, expected any) bool {
	em, ok := expected.(map[string]any)
	if !ok {
		return reflect.DeepEqual(actual, expected)
	}
	am, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for k, ev := range em {
		av, exists := am[k]
		if !exists || !Matches(av, ev) {
			return false
		}
	}
	return true
}

// matchState normalizes both sides and applies Matches.
func matchState(state any, expected map[string]any) (bool, error) {
	actual, err := Normalize(state)
	if err != nil {
		return false, fmt.Errorf("normalize state: %w", err)
	}
	want, err := Normalize(expected)
	if err != nil {
		return false, fmt.Errorf("normalize expectation: %w", err)
	}
	return Matches(actual, want), nil
}

func assertFinalState(result *Result, assertion Assertion) error {
	ok, err := matchState(result.State, assertion.Expect)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: compact(assertion.Expect),
			Actual:   compact(result.State),
		}
	}
	return nil
}

func assertCommitCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventCommit {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertCommitCount,
			Expected: fmt.Sprintf("%d commits", assertion.Count),
			Actual:   fmt.Sprintf("%d commits", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCommitOrder checks that Kinds occur as a subsequence of the commit
// kinds. Intervening commits are allowed.
func assertCommitOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(assertion.Kinds) {
			break
		}
		if event.Type == EventCommit && event.Kind == assertion.Kinds[next] {
			next++
		}
	}

	if next < len(assertion.Kinds) {
		return &AssertionError{
			Type:     AssertCommitOrder,
			Expected: fmt.Sprintf("commit kinds in order: %v", assertion.Kinds),
			Actual:   fmt.Sprintf("matched %d of %d, missing %q", next, len(assertion.Kinds), assertion.Kinds[next]),
			Trace:    trace,
		}
	}
	return nil
}

func assertCommitContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != EventCommit {
			continue
		}
		if assertion.Kind != "" && event.Kind != assertion.Kind {
			continue
		}
		ok, err := matchState(event.State, assertion.State)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	kind := assertion.Kind
	if kind == "" {
		kind = "any"
	}
	return &AssertionError{
		Type:     AssertCommitContains,
		Expected: fmt.Sprintf("%s commit with state %s", kind, compact(assertion.State)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	trace := result.snapshot()

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertCommitCount:
			err = assertCommitCount(trace, assertion)
		case AssertCommitOrder:
			err = assertCommitOrder(trace, assertion)
		case AssertCommitContains:
			err = assertCommitContains(trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// compact renders v as canonical JSON for messages, with sorted keys.
func compact(v any) string {
	raw, err := journal.Canonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
