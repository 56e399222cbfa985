package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/reactor"
)

// Commits collects the commits delivered to one subscription.
//
// Safe for concurrent use: commits arrive on the main loop while the test
// reads from its own goroutine.
type Commits[S any] struct {
	mu      sync.Mutex
	commits []reactor.Commit[S]
	cancel  reactor.Cancel
}

// Record subscribes to r's commits, starting with the current one.
func Record[A, M, S any](r *reactor.Reactor[A, M, S]) *Commits[S] {
	c := &Commits[S]{}
	c.cancel = r.SubscribeCommits(func(commit reactor.Commit[S]) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.commits = append(c.commits, commit)
	})
	return c
}

// Stop ends the subscription. Commits already collected are kept.
func (c *Commits[S]) Stop() {
	c.cancel()
}

// All returns a copy of the collected commits.
func (c *Commits[S]) All() []reactor.Commit[S] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]reactor.Commit[S](nil), c.commits...)
}

// States returns the state of every commit.
func (c *Commits[S]) States() []S {
	var out []S
	for _, commit := range c.All() {
		out = append(out, commit.State)
	}
	return out
}

// Kinds returns the kind of every commit.
func (c *Commits[S]) Kinds() []reactor.CommitKind {
	var out []reactor.CommitKind
	for _, commit := range c.All() {
		out = append(out, commit.Kind)
	}
	return out
}

// Len returns the number of collected commits.
func (c *Commits[S]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commits)
}

// WaitLen waits up to two seconds for at least n commits.
func (c *Commits[S]) WaitLen(t testing.TB, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Len() >= n }, 2*time.Second, time.Millisecond,
		"want %d commits", n)
}
