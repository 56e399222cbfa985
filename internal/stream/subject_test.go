package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subscribe starts s.Stream() and returns once the subscription is registered.
func subscribe[T any](t *testing.T, s *Subject[T]) (*sync.Mutex, *[]T, context.CancelFunc, Run) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var got []T
	run := Start(ctx, s.Stream(), func(v T) bool {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		return true
	})

	select {
	case <-run.Primed():
	case <-time.After(time.Second):
		t.Fatal("subscription did not prime")
	}
	return &mu, &got, cancel, run
}

func TestSubject_DeliversSynchronously(t *testing.T) {
	s := NewSubject[int]()
	mu, got, _, _ := subscribe(t, s)

	require.True(t, s.Send(1))
	require.True(t, s.Send(2))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, *got, "values are visible as soon as Send returns")
}

func TestSubject_NoReplay(t *testing.T) {
	s := NewSubject[int]()
	s.Send(1)

	mu, got, _, _ := subscribe(t, s)
	s.Send(2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2}, *got)
	assert.Equal(t, int64(2), s.Sent())
}

func TestSubject_Multicast(t *testing.T) {
	s := NewSubject[string]()
	mu1, got1, _, _ := subscribe(t, s)
	mu2, got2, _, _ := subscribe(t, s)
	assert.Equal(t, 2, s.Subscribers())

	s.Send("x")

	mu1.Lock()
	assert.Equal(t, []string{"x"}, *got1)
	mu1.Unlock()
	mu2.Lock()
	assert.Equal(t, []string{"x"}, *got2)
	mu2.Unlock()
}

func TestSubject_CancelRemovesSubscriber(t *testing.T) {
	s := NewSubject[int]()
	_, _, cancel, run := subscribe(t, s)
	require.Equal(t, 1, s.Subscribers())

	cancel()
	<-run.Done()

	assert.Equal(t, 0, s.Subscribers())
}

func TestSubject_CloseEndsStreams(t *testing.T) {
	s := NewSubject[int]()
	_, _, _, run := subscribe(t, s)

	s.Close()
	select {
	case <-run.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not end on Close")
	}

	assert.False(t, s.Send(1))
	s.Close() // idempotent
}

func TestSubject_StreamAfterCloseEndsImmediately(t *testing.T) {
	s := NewSubject[int]()
	s.Close()

	assert.Empty(t, Collect(context.Background(), s.Stream(), 1))
}

func TestSubject_YieldFalseUnsubscribes(t *testing.T) {
	s := NewSubject[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int
	run := Start(ctx, s.Stream(), func(v int) bool {
		got = append(got, v)
		return false
	})
	<-run.Primed()

	s.Send(1)
	<-run.Done()
	s.Send(2)

	assert.Equal(t, []int{1}, got)
}

func TestSubject_ConcurrentSend(t *testing.T) {
	s := NewSubject[int]()
	mu, got, _, _ := subscribe(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Send(i)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, *got, 100)
}
