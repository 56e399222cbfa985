package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/reactor/internal/demo"
	"github.com/roach88/reactor/internal/journal"
	"github.com/roach88/reactor/internal/mainloop"
	"github.com/roach88/reactor/internal/reactor"
)

// FixedIDs are the reactor IDs handed out during a scenario, in order.
var FixedIDs = []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"}

// Harness is the scenario execution engine. Each Run gets a fresh main
// loop and fixed reactor IDs.
type Harness struct {
	registry *demo.Registry
	journal  *journal.Journal
	logger   *slog.Logger
	options  []reactor.Option
}

// Option configures a Harness.
type Option func(*Harness)

// WithRegistry sets the reactor registry. Default: demo.Default().
func WithRegistry(reg *demo.Registry) Option {
	return func(h *Harness) {
		h.registry = reg
	}
}

// WithJournal records every commit and action of the run in j.
func WithJournal(j *journal.Journal) Option {
	return func(h *Harness) {
		h.journal = j
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithReactorOptions adds options to every reactor the harness builds.
// The harness's own loop, logger and ID options take precedence.
func WithReactorOptions(opts ...reactor.Option) Option {
	return func(h *Harness) {
		h.options = append(h.options, opts...)
	}
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		registry: demo.Default(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return New(opts...).Run(context.Background(), scenario)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Start a private main loop and build the reactor with fixed IDs
//  2. Record commits (and attach the journal if configured)
//  3. Execute steps in order
//  4. Drain the loop, capture the final state, dispose the reactor
//  5. Evaluate assertions
//
// The returned error covers scenarios that cannot run at all (unknown
// reactor, bad arguments). Timeouts and failed assertions are reported in
// the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	entry, ok := h.registry.Lookup(scenario.Reactor)
	if !ok {
		return nil, fmt.Errorf("unknown reactor %q (registered: %v)", scenario.Reactor, h.registry.Names())
	}

	var initial json.RawMessage
	if scenario.Initial != nil {
		raw, err := journal.Canonical(scenario.Initial)
		if err != nil {
			return nil, fmt.Errorf("initial: %w", err)
		}
		initial = raw
	}

	logger := h.logger.With("scenario", scenario.Name)
	loop := mainloop.New(mainloop.WithLogger(logger), mainloop.WithName(scenario.Name))
	loop.Start()
	defer loop.Stop()

	opts := append(slices.Clip(h.options),
		reactor.WithLoop(loop),
		reactor.WithLogger(logger),
		reactor.WithIDGenerator(reactor.NewFixedGenerator(FixedIDs...)),
	)
	inst, err := entry.New(initial, opts...)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", scenario.Reactor, err)
	}
	defer inst.Dispose()

	result := NewResult()
	result.ReactorID = inst.ID()

	cancel := inst.SubscribeCommits(func(c demo.Commit) {
		state, err := Normalize(c.State)
		if err != nil {
			result.AddError(fmt.Sprintf("commit #%d: %v", c.Seq, err))
			return
		}
		result.AddEvent(TraceEvent{Type: EventCommit, Kind: c.Kind, State: state, Seq: c.Seq})
	})
	defer cancel()
	drain(loop)

	var rec demo.Recording
	if h.journal != nil {
		rec, err = inst.Record(ctx, h.journal, logger)
		if err != nil {
			return nil, fmt.Errorf("attach journal: %w", err)
		}
		defer rec.Detach()
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, inst, step, result); err != nil {
			var te *timeoutError
			if errors.As(err, &te) {
				result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.describe(), err))
				continue
			}
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.describe(), err)
		}
	}
	drain(loop)

	state, err := Normalize(inst.State())
	if err != nil {
		return nil, fmt.Errorf("final state: %w", err)
	}
	result.State = state

	if rec != nil {
		if err := rec.Err(); err != nil {
			result.AddError(fmt.Sprintf("journal: %v", err))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	logger.Debug("scenario finished", "pass", result.Pass, "commits", len(result.Commits()))
	return result, nil
}

type timeoutError struct {
	after time.Duration
	want  map[string]any
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("state did not match %s within %s", compact(e.want), e.after)
}

func (h *Harness) executeStep(ctx context.Context, inst demo.Instance, step Step, result *Result) error {
	switch {
	case step.Action != "":
		result.AddEvent(TraceEvent{Type: EventAction, Name: step.Action, Args: step.Args, Seq: inst.Current().Seq})
		if step.Until == nil {
			return inst.Send(step.Action, step.Args)
		}

		waitCtx, cancel := context.WithTimeout(ctx, step.timeout())
		defer cancel()
		_, err := inst.SendAndWait(waitCtx, step.Action, step.Args, stateMatcher(step.Until))
		if errors.Is(err, context.DeadlineExceeded) {
			return &timeoutError{after: step.timeout(), want: step.Until}
		}
		return err

	case step.Mutate != nil:
		result.AddEvent(TraceEvent{Type: EventMutation, Args: step.Mutate, Seq: inst.Current().Seq})
		return inst.Inject(step.Mutate)

	default:
		return waitForState(ctx, inst, step.Wait, step.timeout())
	}
}

// stateMatcher returns a predicate on raw states; normalization errors
// count as a mismatch.
func stateMatcher(want map[string]any) func(any) bool {
	return func(s any) bool {
		ok, err := matchState(s, want)
		return err == nil && ok
	}
}

// waitForState blocks until the instance's state matches want.
func waitForState(ctx context.Context, inst demo.Instance, want map[string]any, timeout time.Duration) error {
	match := stateMatcher(want)
	matched := make(chan struct{})
	var done bool
	cancel := inst.SubscribeCommits(func(c demo.Commit) {
		// Commits are delivered one at a time on the main loop.
		if !done && match(c.State) {
			done = true
			close(matched)
		}
	})
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-matched:
		return nil
	case <-timer.C:
		return &timeoutError{after: timeout, want: want}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain waits until every task queued on loop so far has run.
func drain(loop *mainloop.Loop) {
	loop.Do(func() {})
}
