package reactor

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/roach88/reactor/internal/stream"
)

// CommitKind tells which path produced a commit.
type CommitKind string

const (
	// KindInitial is the state the reactor was constructed with.
	KindInitial CommitKind = "initial"

	// KindSync is a state folded from a sync mutation of an action's batch.
	KindSync CommitKind = "sync"

	// KindAsync is a state folded from the mutation stream: async batch
	// parts, TransformMutation additions and direct Mutate calls.
	KindAsync CommitKind = "async"
)

// Commit is one state made observable on the main loop.
type Commit[S any] struct {
	Seq   int64
	Kind  CommitKind
	State S
}

type observer[S any] struct {
	fn        func(Commit[S]) bool // false unsubscribes
	since     int64                // commits at or before since were already seen
	cancelled atomic.Bool
	unbag     atomic.Pointer[func()]
}

// Read returns the latest committed state. Safe from any goroutine.
func (r *Reactor[A, M, S]) Read() S {
	return r.current.Load().State
}

// Current returns the latest commit. Safe from any goroutine.
func (r *Reactor[A, M, S]) Current() Commit[S] {
	return *r.current.Load()
}

// Subscribe calls fn with the current state and then with every committed
// state, on the main loop, in commit order. The returned Cancel is also
// registered in the reactor's Bag.
func (r *Reactor[A, M, S]) Subscribe(fn func(S)) Cancel {
	return r.observe(func(c Commit[S]) bool {
		fn(c.State)
		return true
	})
}

// SubscribeCommits is Subscribe with the commit metadata.
func (r *Reactor[A, M, S]) SubscribeCommits(fn func(Commit[S])) Cancel {
	return r.observe(func(c Commit[S]) bool {
		fn(c)
		return true
	})
}

// Stream returns the committed states as a sequence: the current state
// first, then every commit. Values are yielded on the main loop.
func (r *Reactor[A, M, S]) Stream() stream.Seq[S] {
	return stream.Map(r.Commits(), func(c Commit[S]) S { return c.State })
}

// Commits is Stream with the commit metadata. The sequence ends when its
// context ends or the reactor is disposed.
func (r *Reactor[A, M, S]) Commits() stream.Seq[Commit[S]] {
	return func(ctx context.Context, yield func(Commit[S]) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stop := r.observe(func(c Commit[S]) bool {
			if ctx.Err() != nil {
				return false
			}
			if !yield(c) {
				cancel()
				return false
			}
			return true
		})
		defer stop()

		stream.Park(ctx)
		select {
		case <-ctx.Done():
		case <-r.ctx.Done():
		}
	}
}

// observe registers fn on the loop. It runs inline when called on the
// loop, so no commit can slip between registration and the delivery of
// the current state.
func (r *Reactor[A, M, S]) observe(fn func(Commit[S]) bool) Cancel {
	if r.disposed.Load() {
		return func() {}
	}

	o := &observer[S]{fn: fn}
	cancel := Cancel(func() {
		if !o.cancelled.CompareAndSwap(false, true) {
			return
		}
		if rm := o.unbag.Load(); rm != nil {
			(*rm)()
		}
		r.onLoop(func() { r.removeObserver(o) })
	})
	rm := r.bag.Add(cancel)
	o.unbag.Store(&rm)

	r.onLoop(func() {
		if o.cancelled.Load() || r.disposed.Load() {
			return
		}
		cur := *r.current.Load()
		o.since = cur.Seq
		r.observers = append(slices.Clone(r.observers), o)
		if !o.fn(cur) {
			cancel()
		}
	})
	return cancel
}

func (r *Reactor[A, M, S]) removeObserver(o *observer[S]) {
	r.observers = slices.DeleteFunc(slices.Clone(r.observers), func(x *observer[S]) bool {
		return x == o
	})
}

// commit publishes s. Loop only.
//
// Commits raised by an observer while another commit is being delivered
// are queued, so every observer sees commits in Seq order.
func (r *Reactor[A, M, S]) commit(s S, kind CommitKind) {
	if r.disposed.Load() {
		return
	}
	c := Commit[S]{Seq: r.clock.Next(), Kind: kind, State: s}
	r.current.Store(&c)
	r.metrics.commit(r.name, kind)
	r.logger.Debug("commit", "seq", c.Seq, "kind", kind)

	r.outbox = append(r.outbox, c)
	if r.delivering {
		return
	}
	r.delivering = true
	defer func() { r.delivering = false }()

	for len(r.outbox) > 0 && !r.disposed.Load() {
		next := r.outbox[0]
		r.outbox = r.outbox[1:]
		r.deliver(next)
	}
}

func (r *Reactor[A, M, S]) deliver(c Commit[S]) {
	for _, o := range r.observers {
		if o.cancelled.Load() || c.Seq <= o.since {
			continue
		}
		if !o.fn(c) {
			if o.cancelled.CompareAndSwap(false, true) {
				if rm := o.unbag.Load(); rm != nil {
					(*rm)()
				}
				r.removeObserver(o)
			}
		}
		if r.disposed.Load() {
			return
		}
	}
}
