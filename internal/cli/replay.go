package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayReactorResult holds the replay result for a single reactor.
type ReplayReactorResult struct {
	ReactorID string `json:"reactor_id"`
	Name      string `json:"name"`
	Commits   int    `json:"commits"`
	Actions   int    `json:"actions"`
	FirstSeq  int64  `json:"first_seq"`
	LastSeq   int64  `json:"last_seq"`
	State     any    `json:"state,omitempty"`
	Intact    bool   `json:"intact"`
	Problem   string `json:"problem,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Reactors  []ReplayReactorResult `json:"reactors"`
	Total     int                   `json:"total"`
	AllIntact bool                  `json:"all_intact"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [reactor-id]",
		Short: "Replay the journal and verify it",
		Long: `Re-read every journaled reactor, recompute each entry's digest,
check that commit sequence numbers are dense, and restore the last
committed state.

Exit codes:
  0 - Every reactor verified
  1 - A digest mismatch or a gap in commit sequence numbers
  2 - Command error (database not found, unknown reactor, etc.)

Examples:
  reactor replay --db ./reactor.db
  reactor replay --db ./reactor.db 01928c3e-...
  reactor replay --db ./reactor.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runReplay(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, reactorID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening a missing path would create an empty journal.
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", opts.Database))
	}
	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	infos, err := j.Reactors(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list reactors", err)
	}
	if reactorID != "" {
		infos = filterReactor(infos, reactorID)
		if len(infos) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("reactor not found: %s", reactorID))
		}
	}

	result := ReplayResult{
		Reactors:  make([]ReplayReactorResult, 0, len(infos)),
		Total:     len(infos),
		AllIntact: true,
	}
	for _, info := range infos {
		formatter.VerboseLog("Replaying %s (%s)", info.ID, info.Name)

		rr, err := replayReactor(ctx, j, info)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay reactor %s", info.ID), err)
		}
		result.Reactors = append(result.Reactors, rr)
		if !rr.Intact {
			result.AllIntact = false
		}
	}

	var failure *CLIError
	if !result.AllIntact {
		failure = &CLIError{Code: CodeDigestMismatch, Message: "journal verification failed"}
	}
	err = formatter.Report(result, failure, func(w io.Writer) {
		outputReplayText(w, result, opts.Verbose)
	})
	if err != nil {
		return err
	}

	if !result.AllIntact {
		// Verification failure = exit code 1
		return NewExitError(ExitFailure, "journal verification failed")
	}
	return nil
}

func filterReactor(infos []journal.ReactorInfo, id string) []journal.ReactorInfo {
	for _, info := range infos {
		if info.ID == id {
			return []journal.ReactorInfo{info}
		}
	}
	return nil
}

// replayReactor verifies one reactor. Integrity problems are reported in
// the result; the error is for journal access failures.
func replayReactor(ctx context.Context, j *journal.Journal, info journal.ReactorInfo) (ReplayReactorResult, error) {
	rr := ReplayReactorResult{
		ReactorID: info.ID,
		Name:      info.Name,
		Commits:   info.Commits,
		Actions:   info.Actions,
		LastSeq:   info.LastSeq,
		Intact:    true,
	}

	if err := j.Verify(ctx, info.ID); err != nil {
		var mismatch *journal.DigestMismatchError
		if !errors.As(err, &mismatch) {
			return rr, err
		}
		rr.Intact = false
		rr.Problem = mismatch.Error()
		return rr, nil
	}

	entries, err := j.ReadEntries(ctx, info.ID)
	if err != nil {
		return rr, err
	}
	var prev int64
	for _, e := range entries {
		if !e.IsCommit() {
			continue
		}
		if prev == 0 {
			rr.FirstSeq = e.Seq
		} else if e.Seq != prev+1 {
			rr.Intact = false
			rr.Problem = fmt.Sprintf("commit seq %d follows %d", e.Seq, prev)
			return rr, nil
		}
		prev = e.Seq
	}

	if info.Commits > 0 {
		var state any
		if _, err := j.Restore(ctx, info.ID, &state); err != nil {
			return rr, err
		}
		rr.State = state
	}
	return rr, nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No reactors found in journal.")
		return
	}

	fmt.Fprintf(w, "Replay Summary: %d reactor(s)\n", result.Total)
	fmt.Fprintln(w)

	for _, r := range result.Reactors {
		status := "✓"
		if !r.Intact {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Reactor: %s (%s)\n", status, r.ReactorID, r.Name)
		fmt.Fprintf(w, "  Entries: %d commits, %d actions\n", r.Commits, r.Actions)

		if verbose {
			fmt.Fprintf(w, "  Seq: %d..%d\n", r.FirstSeq, r.LastSeq)
			if r.State != nil {
				fmt.Fprintf(w, "  State: %s\n", compactJSON(r.State))
			}
		}
		if r.Problem != "" {
			fmt.Fprintf(w, "  Problem: %s\n", r.Problem)
		}
		fmt.Fprintln(w)
	}

	if result.AllIntact {
		fmt.Fprintln(w, "✓ All reactors verified")
		return
	}
	fmt.Fprintln(w, "✗ Journal verification failed")
}
