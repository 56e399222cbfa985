package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/config"
)

// RootOptions holds the persistent flags every subcommand reads.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional CUE config file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

const (
	groupScenarios = "scenarios"
	groupJournal   = "journal"
)

// NewRootCommand creates the root command for the reactor CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "reactor",
		Short: "Drive, record and replay reactors",
		Long: `reactor runs the registered demo reactors outside a program.

A reactor turns actions into mutation batches, folds every mutation into
its state on one main loop and publishes each commit in order. Scenario
commands drive a reactor through YAML steps and check the commits it
produced. Journal commands read the SQLite journal a run recorded with
--db, verify its digests and rebuild the last committed state.

Settings come from --config (CUE) and REACTOR_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "print commit traces and force debug logging")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Config, "config", "", "CUE config file (REACTOR_* env vars override it)")

	cmd.AddGroup(
		&cobra.Group{ID: groupScenarios, Title: "Scenario commands:"},
		&cobra.Group{ID: groupJournal, Title: "Journal commands:"},
	)
	for group, subs := range map[string][]*cobra.Command{
		groupScenarios: {
			NewValidateCommand(opts),
			NewRunCommand(opts),
			NewInvokeCommand(opts),
			NewTestCommand(opts),
		},
		groupJournal: {
			NewReplayCommand(opts),
			NewTraceCommand(opts),
		},
	} {
		for _, sub := range subs {
			sub.GroupID = group
			cmd.AddCommand(sub)
		}
	}

	return cmd
}

// loadConfig loads --config and the environment. Config errors are
// command errors.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// logger builds the configured logger on the command's stderr.
func (o *RootOptions) logger(cfg config.Config, cmd *cobra.Command) *slog.Logger {
	return cfg.Logger(cmd.ErrOrStderr())
}

// journalPath returns the --db flag, or the configured journal when
// journaling is enabled.
func journalPath(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	if cfg.Journal.Enabled {
		return cfg.Journal.Path
	}
	return ""
}
