package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/reactor/internal/reactor"
)

// Recorder appends the commits of one reactor to a journal, and the
// actions sent through it.
//
// Commit writes happen on the main loop, inside the reactor's commit
// delivery, so the journal order is the commit order. Write failures are
// logged and kept; they never stop the reactor.
type Recorder[A any] struct {
	journal   *Journal
	ctx       context.Context
	reactorID string
	logger    *slog.Logger

	send    func(A)
	current func() int64
	cancel  reactor.Cancel

	written atomic.Int64
	mu      sync.Mutex
	errs    []error
}

// Attach registers r in j and starts recording its commits, beginning with
// the current one, which is written before Attach returns. Recording stops
// on Detach or when r is disposed.
func Attach[A, M, S any](ctx context.Context, j *Journal, r *reactor.Reactor[A, M, S], logger *slog.Logger) (*Recorder[A], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := j.RegisterReactor(ctx, r.ID(), r.Name()); err != nil {
		return nil, err
	}

	rec := &Recorder[A]{
		journal:   j,
		ctx:       context.WithoutCancel(ctx),
		reactorID: r.ID(),
		logger:    logger.With("reactor_id", r.ID()),
		send:      r.Action,
		current:   func() int64 { return r.Current().Seq },
	}
	rec.cancel = r.SubscribeCommits(func(c reactor.Commit[S]) {
		if err := j.WriteCommit(rec.ctx, rec.reactorID, c.Seq, string(c.Kind), c.State); err != nil {
			rec.fail(err)
			return
		}
		rec.written.Add(1)
	})
	if !r.Loop().OnLoop() {
		r.Loop().Do(func() {})
	}
	return rec, nil
}

// Send journals a and then sends it to the reactor.
func (rec *Recorder[A]) Send(a A) {
	rec.Note(a)
	rec.send(a)
}

// Note journals v as an action without sending anything, for callers that
// send through another path such as reactor.SendAndWait or that journal a
// richer description of the action than A itself.
func (rec *Recorder[A]) Note(v any) {
	if err := rec.journal.WriteAction(rec.ctx, rec.reactorID, rec.current(), v); err != nil {
		rec.fail(err)
	}
}

// ReactorID returns the id of the recorded reactor.
func (rec *Recorder[A]) ReactorID() string {
	return rec.reactorID
}

// Written returns the number of commits written so far.
func (rec *Recorder[A]) Written() int64 {
	return rec.written.Load()
}

// Err returns every write error so far, joined.
func (rec *Recorder[A]) Err() error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return errors.Join(rec.errs...)
}

// Detach stops recording commits.
func (rec *Recorder[A]) Detach() {
	rec.cancel()
}

func (rec *Recorder[A]) fail(err error) {
	rec.logger.Error("journal write failed", "error", err)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.errs = append(rec.errs, err)
}
