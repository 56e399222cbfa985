package reactor

import (
	"context"
)

// SendAndWait sends action and blocks until a committed state no longer
// satisfies while. It returns that state.
//
// The state after the action's sync mutations is checked first, then every
// later commit. The wait ends with ctx.Err() when ctx ends and with
// ErrDisposed when the reactor is torn down first; it never outlives the
// reactor. Called on the main loop, it keeps executing loop tasks while
// waiting.
//
//	// pull to refresh
//	s, err := reactor.SendAndWait(ctx, r, Refresh{}, func(s State) bool { return s.Loading })
func SendAndWait[A, M, S any](ctx context.Context, r *Reactor[A, M, S], action A, while func(S) bool) (S, error) {
	var zero S
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.Disposed() {
		return zero, ErrDisposed
	}

	var result S
	ready := make(chan struct{})

	r.Action(action)
	stop := r.observe(func(c Commit[S]) bool {
		if while(c.State) {
			return true
		}
		result = c.State
		close(ready)
		return false
	})
	defer stop()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(r.ctx, cancel)
	defer unlink()

	if err := r.loop.Await(waitCtx, ready); err != nil {
		select {
		case <-ready:
			return result, nil
		default:
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrDisposed
	}
	return result, nil
}
