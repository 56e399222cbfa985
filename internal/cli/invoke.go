package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/demo"
	"github.com/roach88/reactor/internal/harness"
	"github.com/roach88/reactor/internal/journal"
	"github.com/roach88/reactor/internal/mainloop"
	"github.com/roach88/reactor/internal/reactor"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Args     string
	Initial  string
	Until    string
	Timeout  time.Duration
	Database string
}

// InvokeResult is the outcome of one action.
type InvokeResult struct {
	Reactor   string        `json:"reactor"`
	ReactorID string        `json:"reactor_id"`
	Action    string        `json:"action"`
	Commits   []demo.Commit `json:"commits"`
	State     any           `json:"state"`
	Matched   *bool         `json:"matched,omitempty"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <reactor> <action>",
		Short: "Send one action to a fresh reactor",
		Long: `Build a registered reactor, send it one action and print the
commits it produced.

Without --until only the synchronous commits are printed. With --until
the command waits for a state matching the given JSON subset.

Exit codes:
  0 - Action sent (and --until matched)
  1 - --until did not match within --timeout
  2 - Command error (unknown reactor or action, bad JSON)

Examples:
  reactor invoke counter increment --args '{"by":2}'
  reactor invoke search set_query --args '{"query":"an"}' --until '{"loading":false}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeAction(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "action arguments as JSON")
	cmd.Flags().StringVar(&opts.Initial, "initial", "", "initial state overrides as JSON")
	cmd.Flags().StringVar(&opts.Until, "until", "", "wait for a state matching this JSON subset")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", harness.DefaultStepTimeout, "bound for --until")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record into this SQLite journal")

	return cmd
}

func invokeAction(opts *InvokeOptions, name, action string, cmd *cobra.Command) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(opts.Args), &args); err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}
	var until map[string]any
	if opts.Until != "" {
		if err := json.Unmarshal([]byte(opts.Until), &until); err != nil {
			return WrapExitError(ExitCommandError, "invalid --until JSON", err)
		}
	}
	var initial json.RawMessage
	if opts.Initial != "" {
		if !json.Valid([]byte(opts.Initial)) {
			return NewExitError(ExitCommandError, "invalid --initial JSON")
		}
		initial = json.RawMessage(opts.Initial)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	registry := demo.Default()
	entry, ok := registry.Lookup(name)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown reactor %q (registered: %v)", name, registry.Names()))
	}

	loop := mainloop.New(mainloop.WithLogger(logger), mainloop.WithName("invoke"))
	loop.Start()
	defer loop.Stop()

	metrics, promRegistry := newMetrics(cfg)
	inst, err := entry.New(initial, append(cfg.Options(metrics), reactor.WithLoop(loop), reactor.WithLogger(logger))...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build "+name, err)
	}
	defer inst.Dispose()

	var (
		mu      sync.Mutex
		commits []demo.Commit
	)
	cancel := inst.SubscribeCommits(func(c demo.Commit) {
		mu.Lock()
		commits = append(commits, c)
		mu.Unlock()
	})
	defer cancel()

	ctx, stop := signalContext(cmd)
	defer stop()

	if db := journalPath(opts.Database, cfg); db != "" {
		j, err := journal.Open(db)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		rec, err := inst.Record(ctx, j, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to attach journal", err)
		}
		defer rec.Detach()
		formatter.VerboseLog("Recording %s into %s", inst.ID(), db)
	}

	result := InvokeResult{Reactor: name, ReactorID: inst.ID(), Action: action}
	if until == nil {
		err = inst.Send(action, args)
	} else {
		waitCtx, cancelWait := context.WithTimeout(ctx, opts.Timeout)
		defer cancelWait()
		_, err = inst.SendAndWait(waitCtx, action, args, func(s any) bool {
			got, nerr := harness.Normalize(s)
			want, werr := harness.Normalize(until)
			return nerr == nil && werr == nil && harness.Matches(got, want)
		})
		matched := err == nil
		result.Matched = &matched
		if errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to send "+action, err)
	}

	// Let the commits of the send reach the subscriber.
	loop.Do(func() {})
	writeMetrics(cmd.ErrOrStderr(), promRegistry, logger)

	mu.Lock()
	result.Commits = append([]demo.Commit{}, commits...)
	mu.Unlock()
	result.State, err = harness.Normalize(inst.State())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode state", err)
	}

	var failure *CLIError
	if result.Matched != nil && !*result.Matched {
		failure = &CLIError{Code: CodeTimeout, Message: fmt.Sprintf("state did not match --until within %s", opts.Timeout)}
	}
	err = formatter.Report(result, failure, func(w io.Writer) {
		outputInvokeText(w, result)
	})
	if err != nil {
		return err
	}
	if failure != nil {
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

func outputInvokeText(w io.Writer, r InvokeResult) {
	fmt.Fprintf(w, "%s %s -> %s\n", r.Reactor, r.ReactorID, r.Action)
	for _, c := range r.Commits {
		fmt.Fprintf(w, "  #%d %-7s %s\n", c.Seq, c.Kind, compactJSON(c.State))
	}
	if r.Matched != nil && !*r.Matched {
		fmt.Fprintln(w, "✗ --until did not match")
	}
	fmt.Fprintf(w, "State: %s\n", compactJSON(r.State))
}
