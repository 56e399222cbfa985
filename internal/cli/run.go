package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/config"
	"github.com/roach88/reactor/internal/harness"
	"github.com/roach88/reactor/internal/journal"
	"github.com/roach88/reactor/internal/reactor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// RunResult is the outcome of one scenario.
type RunResult struct {
	Scenario  string               `json:"scenario"`
	Reactor   string               `json:"reactor"`
	ReactorID string               `json:"reactor_id"`
	Pass      bool                 `json:"pass"`
	Commits   int                  `json:"commits"`
	State     any                  `json:"state"`
	Errors    []string             `json:"errors,omitempty"`
	Trace     []harness.TraceEvent `json:"trace"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run a scenario against its reactor and print the commit trace
and final state.

With --db (or journal.enabled in the config) every commit and action is
recorded in the SQLite journal for later replay.

Exit codes:
  0 - Scenario passed
  1 - Scenario assertions failed
  2 - Command error (bad scenario, unknown reactor, journal error)

Examples:
  reactor run scenarios/counter.yaml
  reactor run scenarios/search.yaml --db ./reactor.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record into this SQLite journal")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	hopts := []harness.Option{harness.WithLogger(logger)}

	if db := journalPath(opts.Database, cfg); db != "" {
		logger.Info("opening journal", "path", db)
		j, err := journal.Open(db)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		hopts = append(hopts, harness.WithJournal(j))
	}

	metrics, registry := newMetrics(cfg)
	hopts = append(hopts, harness.WithReactorOptions(cfg.Options(metrics)...))

	ctx, stop := signalContext(cmd)
	defer stop()

	result, err := harness.New(hopts...).Run(ctx, scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}
	writeMetrics(cmd.ErrOrStderr(), registry, logger)

	out := RunResult{
		Scenario:  scenario.Name,
		Reactor:   scenario.Reactor,
		ReactorID: result.ReactorID,
		Pass:      result.Pass,
		Commits:   len(result.Commits()),
		State:     result.State,
		Errors:    result.Errors,
		Trace:     result.Trace,
	}

	var failure *CLIError
	if !out.Pass {
		failure = &CLIError{Code: CodeScenarioFailed, Message: fmt.Sprintf("scenario %s failed", scenario.Name)}
	}
	err = formatter.Report(out, failure, func(w io.Writer) {
		outputRunText(w, out, opts.Verbose)
	})
	if err != nil {
		return err
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func outputRunText(w io.Writer, r RunResult, verbose bool) {
	status := "✓"
	if !r.Pass {
		status = "✗"
	}
	fmt.Fprintf(w, "%s %s (%s %s)\n", status, r.Scenario, r.Reactor, r.ReactorID)

	if verbose {
		for _, e := range r.Trace {
			switch e.Type {
			case harness.EventCommit:
				fmt.Fprintf(w, "  #%d %-7s %s\n", e.Seq, e.Kind, compactJSON(e.State))
			case harness.EventAction:
				fmt.Fprintf(w, "  -> %s %s\n", e.Name, compactJSON(e.Args))
			default:
				fmt.Fprintf(w, "  -> %s %s\n", e.Type, compactJSON(e.Args))
			}
		}
	}

	fmt.Fprintf(w, "  Commits: %d\n", r.Commits)
	fmt.Fprintf(w, "  State: %s\n", compactJSON(r.State))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// compactJSON renders v as canonical JSON for text output.
func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	raw, err := journal.Canonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// signalContext is cancelled on SIGINT or SIGTERM, or with the command's
// own context.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newMetrics returns nil values unless metrics are enabled.
func newMetrics(cfg config.Config) (*reactor.Metrics, *prometheus.Registry) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	registry := prometheus.NewRegistry()
	return reactor.NewMetrics(registry, cfg.Metrics.Namespace), registry
}

// writeMetrics dumps the registry in the Prometheus text format.
func writeMetrics(w io.Writer, registry *prometheus.Registry, logger *slog.Logger) {
	if registry == nil {
		return
	}
	families, err := registry.Gather()
	if err != nil {
		logger.Error("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			logger.Error("write metrics", "error", err)
			return
		}
	}
}
