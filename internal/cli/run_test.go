package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScenario(t *testing.T) {
	out, err := execute(t, "run", "testdata/scenarios/counter_sync.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ counter_sync (counter r1)")
	assert.Contains(t, out, "Commits: 5")
	assert.Contains(t, out, `State: {"pending":0,"value":0}`)
	assert.NotContains(t, out, "#1 initial", "trace lines need --verbose")
}

func TestRunScenarioVerbose(t *testing.T) {
	out, err := execute(t, "run", "-v", "testdata/scenarios/counter_sync.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, `#1 initial {"pending":0,"value":1}`)
	assert.Contains(t, out, `-> increment {"by":2}`)
	assert.Contains(t, out, `-> mutation {"add":10}`)
}

func TestRunScenarioJSON(t *testing.T) {
	out, err := execute(t, "run", "--format", "json", "testdata/scenarios/counter_async.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "counter_async", resp.Data.Scenario)
	assert.Equal(t, 5, resp.Data.Commits)
	assert.Equal(t, map[string]any{"pending": float64(0), "value": float64(3)}, resp.Data.State)
	assert.NotEmpty(t, resp.Data.Trace)
}

func TestRunScenarioFailure(t *testing.T) {
	out, err := execute(t, "run", "testdata/failing/counter_wrong.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ counter_wrong")
	assert.Contains(t, out, "Assertion failed: final_state")
}

func TestRunScenarioFailureJSON(t *testing.T) {
	out, err := execute(t, "run", "--format", "json", "testdata/failing/counter_wrong.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeScenarioFailed, resp.Error.Code)
}

func TestRunCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"run", "testdata/nope.yaml"}, "failed to load scenario"},
		{"invalid scenario", []string{"run", "testdata/invalid/missing_steps.yaml"}, "steps list is required"},
		{"unknown reactor", []string{"run", "testdata/invalid/unknown_reactor.yaml"}, `unknown reactor "thermostat"`},
		{"bad config", []string{"run", "--config", "testdata/config/bad.cue", "testdata/scenarios/counter_sync.yaml"}, "failed to load config"},
		{"no args", []string{"run"}, "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			if tt.name != "no args" {
				assert.Equal(t, ExitCommandError, GetExitCode(err))
			}
		})
	}
}

func TestRunRecordsJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "run.db")
	_, err := execute(t, "run", "--db", db, "testdata/scenarios/counter_sync.yaml")
	require.NoError(t, err)

	out, err := execute(t, "replay", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Reactors, 1)
	assert.Equal(t, "r1", resp.Data.Reactors[0].ReactorID)
	assert.Equal(t, 5, resp.Data.Reactors[0].Commits)
}

func TestRunJournalFromEnv(t *testing.T) {
	db := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("REACTOR_JOURNAL_ENABLED", "true")
	t.Setenv("REACTOR_JOURNAL_PATH", db)

	_, err := execute(t, "run", "testdata/scenarios/counter_sync.yaml")
	require.NoError(t, err)

	out, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Reactor: r1 (counter)", "reactors keep their own name by default")
}

func TestRunMetrics(t *testing.T) {
	t.Setenv("REACTOR_METRICS_ENABLED", "true")
	t.Setenv("REACTOR_METRICS_NAMESPACE", "cli")

	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"run", "testdata/scenarios/counter_sync.yaml"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), "cli_reactor_commits_total")
	assert.Contains(t, errOut.String(), "# TYPE")
}

func TestRunConfigName(t *testing.T) {
	db := filepath.Join(t.TempDir(), "named.db")
	_, err := execute(t, "run", "--config", "testdata/config/reactor.cue", "--db", db, "testdata/scenarios/counter_sync.yaml")
	require.NoError(t, err)

	out, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Reactor: r1 (cli)")
}
