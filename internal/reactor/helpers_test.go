package reactor

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/mainloop"
	"github.com/roach88/reactor/internal/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoop(t *testing.T) *mainloop.Loop {
	t.Helper()
	l := mainloop.New(mainloop.WithLogger(discardLogger()), mainloop.WithName("test"))
	l.Start()
	t.Cleanup(l.Stop)
	return l
}

// newTestReactor builds a reactor on a private loop and disposes it at
// the end of the test.
func newTestReactor[A, M, S any](t *testing.T, logic Logic[A, M, S], initial S, opts ...Option) (*Reactor[A, M, S], *mainloop.Loop) {
	t.Helper()
	loop := newTestLoop(t)
	base := []Option{
		WithLoop(loop),
		WithLogger(discardLogger()),
		WithName("test"),
		WithIDGenerator(NewFixedGenerator("reactor-1", "reactor-2", "reactor-3")),
	}
	r := New(logic, initial, append(base, opts...)...)
	t.Cleanup(r.Dispose)
	return r, loop
}

// barrier waits until every task queued on loop so far has run.
func barrier(t *testing.T, loop *mainloop.Loop) {
	t.Helper()
	require.True(t, loop.Do(func() {}), "loop stopped")
}

// recorder collects commits delivered to an observer.
type recorder[S any] struct {
	mu      sync.Mutex
	commits []Commit[S]
	onLoop  []bool
}

func record[A, M, S any](r *Reactor[A, M, S]) *recorder[S] {
	rec := &recorder[S]{}
	r.SubscribeCommits(func(c Commit[S]) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.commits = append(rec.commits, c)
		rec.onLoop = append(rec.onLoop, r.Loop().OnLoop())
	})
	return rec
}

func (rec *recorder[S]) all() []Commit[S] {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Commit[S](nil), rec.commits...)
}

func (rec *recorder[S]) states() []S {
	var out []S
	for _, c := range rec.all() {
		out = append(out, c.State)
	}
	return out
}

func (rec *recorder[S]) kinds() []CommitKind {
	var out []CommitKind
	for _, c := range rec.all() {
		out = append(out, c.Kind)
	}
	return out
}

func (rec *recorder[S]) len() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.commits)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond)
}

// counter is the logic used by most tests: actions are deltas, each
// action becomes one sync mutation unless async is set.
type counter struct {
	asyncDelay time.Duration
}

func (c counter) Mutate(delta int) Batch[int] {
	if c.asyncDelay > 0 {
		return SyncAsync([]int{delta}, stream.After(c.asyncDelay, delta))
	}
	return One(delta)
}

func (counter) Reduce(state, delta int) int {
	return state + delta
}
