package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reactor/internal/journal"
)

// GoldenDir holds golden traces, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
// Serialized with the journal's canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Reactor      string       `json:"reactor"`
	ReactorID    string       `json:"reactor_id"`
	Trace        []TraceEvent `json:"trace"`
}

// Snapshot serializes the trace of result as canonical JSON.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	return journal.Canonical(TraceSnapshot{
		ScenarioName: scenario.Name,
		Reactor:      scenario.Reactor,
		ReactorID:    result.ReactorID,
		Trace:        result.snapshot(),
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
// Test failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
