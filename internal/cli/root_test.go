package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// copyFile copies src into dir, keeping its base name.
func copyFile(t *testing.T, src, dir string) string {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dst := filepath.Join(dir, filepath.Base(src))
	require.NoError(t, os.WriteFile(dst, data, 0o644))
	return dst
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "reactor", cmd.Use)
	assert.Contains(t, cmd.Long, "commit")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "run", "invoke", "replay", "test", "trace"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
		def     string
	}{
		{"run", "db", ""},
		{"test", "update", "false"},
		{"test", "filter", ""},
		{"replay", "db", ""},
		{"trace", "db", ""},
		{"trace", "kind", ""},
		{"invoke", "args", "{}"},
		{"invoke", "timeout", "2s"},
	}

	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "validate", "testdata/config/reactor.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCommandGroups(t *testing.T) {
	cmd := NewRootCommand()
	groups := map[string]string{
		"validate": groupScenarios,
		"run":      groupScenarios,
		"invoke":   groupScenarios,
		"test":     groupScenarios,
		"replay":   groupJournal,
		"trace":    groupJournal,
	}
	for name, group := range groups {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, group, sub.GroupID, name)
	}
	assert.Len(t, cmd.Groups(), 2)
}

func TestEnvOverrideRejectedBeforeRun(t *testing.T) {
	t.Setenv("REACTOR_METRICS_ENABLED", "true")
	t.Setenv("REACTOR_METRICS_NAMESPACE", "my-app")

	var err error
	assert.NotPanics(t, func() {
		_, err = execute(t, "run", "testdata/scenarios/counter_sync.yaml")
	})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestLoadConfig(t *testing.T) {
	opts := &RootOptions{Config: "testdata/config/reactor.cue"}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "cli", cfg.Name)
	assert.Equal(t, "warn", cfg.Log.Level)

	opts.Verbose = true
	cfg, err = opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level, "--verbose forces debug logs")

	_, err = (&RootOptions{Config: "testdata/config/bad.cue"}).loadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestJournalPath(t *testing.T) {
	cfg, err := (&RootOptions{}).loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "", journalPath("", cfg))
	assert.Equal(t, "flag.db", journalPath("flag.db", cfg))

	cfg.Journal.Enabled = true
	assert.Equal(t, cfg.Journal.Path, journalPath("", cfg))
	assert.Equal(t, "flag.db", journalPath("flag.db", cfg), "the flag wins")
}
