package reactor

import "sync"

// Cancel ends a subscription. Calling it more than once is a no-op.
type Cancel func()

// Bag collects cancellation handles and runs them all on Dispose.
// Handles added after Dispose run immediately.
type Bag struct {
	mu       sync.Mutex
	next     uint64
	cancels  map[uint64]func()
	order    []uint64
	disposed bool
}

// NewBag creates an empty Bag.
func NewBag() *Bag {
	return &Bag{cancels: make(map[uint64]func())}
}

// Add registers fn and returns a func that unregisters it without running it.
func (b *Bag) Add(fn func()) (remove func()) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		fn()
		return func() {}
	}
	b.next++
	id := b.next
	b.cancels[id] = fn
	if len(b.order) > 2*len(b.cancels)+16 {
		b.compact()
	}
	b.order = append(b.order, id)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.cancels, id)
	}
}

// Len returns the number of registered handles.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cancels)
}

// Dispose runs every registered handle in registration order. Idempotent.
func (b *Bag) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	fns := make([]func(), 0, len(b.cancels))
	for _, id := range b.order {
		if fn, ok := b.cancels[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.cancels = nil
	b.order = nil
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// compact drops removed ids from order. Caller holds mu.
func (b *Bag) compact() {
	kept := b.order[:0]
	for _, id := range b.order {
		if _, ok := b.cancels[id]; ok {
			kept = append(kept, id)
		}
	}
	b.order = kept
}

// Disposed reports whether Dispose has been called.
func (b *Bag) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}
