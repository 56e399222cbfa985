package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

type tokenKey struct{}

// primer counts the goroutines of one run that have not parked yet.
type primer struct {
	pending atomic.Int64
	once    sync.Once
	done    chan struct{}
}

func newPrimer() *primer {
	return &primer{done: make(chan struct{})}
}

func (p *primer) release() {
	if p.pending.Add(-1) == 0 {
		p.once.Do(func() { close(p.done) })
	}
}

// token is held by exactly one goroutine of a run and released once.
type token struct {
	p    *primer
	once sync.Once
}

func (p *primer) newToken() *token {
	p.pending.Add(1)
	return &token{p: p}
}

func (t *token) release() {
	if t == nil {
		return
	}
	t.once.Do(t.p.release)
}

func withToken(ctx context.Context, t *token) context.Context {
	return context.WithValue(ctx, tokenKey{}, t)
}

func tokenFrom(ctx context.Context) *token {
	t, _ := ctx.Value(tokenKey{}).(*token)
	return t
}

// Park marks the calling goroutine as waiting for external input.
// Only the first call per goroutine of a run has an effect. Calling Park
// outside a run started with Start is a no-op.
func Park(ctx context.Context) {
	tokenFrom(ctx).release()
}

// fork registers a new goroutine with the run that ctx belongs to and
// returns the context it must use. The returned release func must be
// deferred by that goroutine.
func fork(ctx context.Context) (context.Context, func()) {
	parent := tokenFrom(ctx)
	if parent == nil {
		return ctx, func() {}
	}
	child := parent.p.newToken()
	return withToken(ctx, child), child.release
}

// Run is a Seq executing on its own goroutine.
type Run struct {
	primed <-chan struct{}
	done   <-chan struct{}
}

// Primed is closed once every goroutine of the run has parked or finished.
func (r Run) Primed() <-chan struct{} { return r.primed }

// Done is closed when the Seq has returned.
func (r Run) Done() <-chan struct{} { return r.done }

// Start runs s on a new goroutine, pushing values into yield.
func Start[T any](ctx context.Context, s Seq[T], yield func(T) bool) Run {
	p := newPrimer()
	root := p.newToken()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer root.release()
		s(withToken(ctx, root), yield)
	}()

	return Run{primed: p.done, done: done}
}
