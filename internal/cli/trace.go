package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kind     string // optional - filter to one entry kind
	Action   string // optional - filter actions by name
}

// TraceEntry is one journal entry in the timeline.
type TraceEntry struct {
	ID      int64           `json:"id"`
	Seq     int64           `json:"seq"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEntries int   `json:"total_entries"`
	Commits      int   `json:"commits"`
	Actions      int   `json:"actions"`
	LastSeq      int64 `json:"last_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	ReactorID string       `json:"reactor_id"`
	Name      string       `json:"name"`
	Timeline  []TraceEntry `json:"timeline"`
	Stats     TraceStats   `json:"stats"`
}

var traceKinds = map[string]bool{
	journal.KindInitial: true,
	journal.KindSync:    true,
	journal.KindAsync:   true,
	journal.KindAction:  true,
	"commit":            true,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <reactor-id>",
		Short: "Print the journal timeline of a reactor",
		Long: `Print the journaled commits and actions of one reactor in append order.

An action entry carries the seq of the commit current when it was sent,
so the commits that follow it are the ones it produced, together with
any async commits still in flight.

Filters:
  --kind    initial, sync, async, action, or commit (every commit kind)
  --action  only action entries with this name (commits are kept)

Examples:
  reactor trace --db ./reactor.db 01928c3e-...
  reactor trace --db ./reactor.db 01928c3e-... --kind async
  reactor trace --db ./reactor.db 01928c3e-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one entry kind")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter actions by name")

	return cmd
}

func runTrace(opts *TraceOptions, reactorID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Kind != "" && !traceKinds[opts.Kind] {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q", opts.Kind))
	}
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", opts.Database))
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	entries, err := j.ReadEntries(ctx, reactorID)
	if err != nil {
		if journal.IsNotFound(err) {
			return NewExitError(ExitCommandError, fmt.Sprintf("reactor not found: %s", reactorID))
		}
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{
		ReactorID: reactorID,
		Name:      reactorName(ctx, j, reactorID),
		Timeline:  buildTimeline(entries, opts.Kind, opts.Action),
	}
	for _, e := range entries {
		if e.IsCommit() {
			result.Stats.Commits++
			result.Stats.LastSeq = e.Seq
		} else {
			result.Stats.Actions++
		}
	}
	result.Stats.TotalEntries = len(result.Timeline)

	return formatter.Report(result, nil, func(w io.Writer) {
		outputTraceText(w, result, opts.Verbose)
	})
}

func reactorName(ctx context.Context, j *journal.Journal, id string) string {
	infos, err := j.Reactors(ctx)
	if err != nil {
		return ""
	}
	for _, info := range infos {
		if info.ID == id {
			return info.Name
		}
	}
	return ""
}

// buildTimeline filters entries by kind and action name.
func buildTimeline(entries []journal.Entry, kind, action string) []TraceEntry {
	timeline := []TraceEntry{}
	for _, e := range entries {
		switch {
		case kind == "commit" && !e.IsCommit():
			continue
		case kind != "" && kind != "commit" && e.Kind != kind:
			continue
		case action != "" && !e.IsCommit() && actionName(e.Payload) != action:
			continue
		}
		timeline = append(timeline, TraceEntry{ID: e.ID, Seq: e.Seq, Kind: e.Kind, Payload: e.Payload})
	}
	return timeline
}

// actionName extracts the "action" field written for named actions.
func actionName(payload json.RawMessage) string {
	var entry struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &entry); err != nil {
		return ""
	}
	return entry.Action
}

// outputTraceText outputs the trace as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace: %s (%s)\n", result.ReactorID, result.Name)
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No entries.")
	}
	for _, e := range result.Timeline {
		if e.Kind == journal.KindAction {
			fmt.Fprintf(w, "  -> after #%d %s\n", e.Seq, e.Payload)
			continue
		}
		if verbose {
			fmt.Fprintf(w, "  #%d %-7s %s\n", e.Seq, e.Kind, e.Payload)
		} else {
			fmt.Fprintf(w, "  #%d %s\n", e.Seq, e.Kind)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d commits, %d actions, last seq %d\n",
		result.Stats.Commits, result.Stats.Actions, result.Stats.LastSeq)
}
