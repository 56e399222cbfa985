// Package testutil holds helpers shared by reactor tests outside the
// reactor package.
package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/mainloop"
	"github.com/roach88/reactor/internal/reactor"
)

// DefaultIDs are the reactor IDs handed out by Options when none are given.
var DefaultIDs = []string{"r1", "r2", "r3"}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewLoop starts a private main loop, stopped when the test ends.
func NewLoop(t testing.TB) *mainloop.Loop {
	t.Helper()
	loop := mainloop.New(mainloop.WithLogger(DiscardLogger()), mainloop.WithName(t.Name()))
	loop.Start()
	t.Cleanup(loop.Stop)
	return loop
}

// Barrier waits until every task queued on loop so far has run.
func Barrier(t testing.TB, loop *mainloop.Loop) {
	t.Helper()
	require.True(t, loop.Do(func() {}), "loop stopped")
}

// Options returns reactor options for a private loop, a discarding logger
// and fixed IDs, in order. Without ids, DefaultIDs are used.
func Options(t testing.TB, ids ...string) ([]reactor.Option, *mainloop.Loop) {
	t.Helper()
	if len(ids) == 0 {
		ids = DefaultIDs
	}
	loop := NewLoop(t)
	return []reactor.Option{
		reactor.WithLoop(loop),
		reactor.WithLogger(DiscardLogger()),
		reactor.WithIDGenerator(reactor.NewFixedGenerator(ids...)),
	}, loop
}
