package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitPrimed(t *testing.T, run Run) {
	t.Helper()
	select {
	case <-run.Primed():
	case <-time.After(time.Second):
		t.Fatal("run did not prime")
	}
}

func TestStart_PrimedAfterFinite(t *testing.T) {
	var mu sync.Mutex
	var got []int
	run := Start(context.Background(), Just(1, 2), func(v int) bool {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		return true
	})

	waitPrimed(t, run)
	<-run.Done()
	assert.Equal(t, []int{1, 2}, got)
}

func TestStart_PrependYieldedBeforePrimed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSubject[int]()
	var mu sync.Mutex
	var got []int
	run := Start(ctx, Prepend(s.Stream(), 0), func(v int) bool {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		return true
	})
	waitPrimed(t, run)

	mu.Lock()
	assert.Equal(t, []int{0}, got)
	mu.Unlock()
	require.Equal(t, 1, s.Subscribers(), "subscription registered by the time the run primed")
}

func TestStart_MergePrimesWhenAllChildrenPark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := NewSubject[int](), NewSubject[int]()
	run := Start(ctx, Merge(a.Stream(), Prepend(b.Stream(), 9)), func(int) bool { return true })
	waitPrimed(t, run)

	assert.Equal(t, 1, a.Subscribers())
	assert.Equal(t, 1, b.Subscribers())
}

func TestStart_NotPrimedWhileBlockedWithoutPark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	blocking := Seq[int](func(ctx context.Context, yield func(int) bool) {
		<-release
	})
	run := Start(ctx, blocking, func(int) bool { return true })

	select {
	case <-run.Primed():
		t.Fatal("primed while the source was still blocked")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	waitPrimed(t, run)
}

func TestPark_OutsideRunIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Park(context.Background())
	})
}

func TestPark_OnlyFirstCallCounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	twice := Seq[int](func(ctx context.Context, yield func(int) bool) {
		Park(ctx)
		Park(ctx)
		<-ctx.Done()
	})
	run := Start(ctx, Merge(twice, Never[int]()), func(int) bool { return true })
	waitPrimed(t, run)

	cancel()
	<-run.Done()
}
