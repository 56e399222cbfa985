package stream

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// Subject is a hot multicast source.
//
// Thread-safety model:
//   - Send(): safe from any goroutine; delivery happens on the sender's goroutine
//   - Stream(): each returned Seq may be started once
//   - Close(): safe from any goroutine, idempotent
//
// A value sent while a subscription is ending may still reach it once.
// Consumers that must not observe values after teardown check their own
// disposed flag.
type Subject[T any] struct {
	mu     sync.RWMutex
	subs   []*subscriber[T] // copy-on-write, registration order
	closed bool
	done   chan struct{}
	sent   atomic.Int64
}

type subscriber[T any] struct {
	yield  func(T) bool
	active atomic.Bool
	cancel context.CancelFunc
}

// NewSubject creates an open Subject with no subscribers.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{done: make(chan struct{})}
}

// Send delivers v to every current subscriber, in registration order.
// Returns false if the subject is closed.
func (s *Subject[T]) Send(v T) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	subs := s.subs
	s.mu.RUnlock()

	s.sent.Add(1)
	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		if !sub.yield(v) {
			sub.active.Store(false)
			sub.cancel()
		}
	}
	return true
}

// Stream returns a Seq that receives every value sent after it starts.
func (s *Subject[T]) Stream() Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sub := &subscriber[T]{yield: yield, cancel: cancel}
		sub.active.Store(true)
		if !s.add(sub) {
			return
		}
		defer s.remove(sub)

		Park(ctx)
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		sub.active.Store(false)
	}
}

// Subscribers returns the number of registered subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Sent returns how many values have been delivered through Send.
func (s *Subject[T]) Sent() int64 {
	return s.sent.Load()
}

// Close ends every subscription. Later Sends are dropped.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.subs = nil
	close(s.done)
}

func (s *Subject[T]) add(sub *subscriber[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	subs := make([]*subscriber[T], 0, len(s.subs)+1)
	subs = append(subs, s.subs...)
	s.subs = append(subs, sub)
	return true
}

func (s *Subject[T]) remove(sub *subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.subs, sub)
	if idx < 0 {
		return
	}
	s.subs = slices.Delete(slices.Clone(s.subs), idx, idx+1)
}
