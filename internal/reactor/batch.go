package reactor

import "github.com/roach88/reactor/internal/stream"

// Batch is the result of mutating one action.
//
// Sync mutations are folded in list order before the sending goroutine
// resumes. Async is started afterwards and its values are folded as they
// arrive; it may never complete. A Batch is a plain description: nothing
// runs until the reactor processes it.
type Batch[M any] struct {
	Sync  []M
	Async stream.Seq[M]
}

// None returns the empty batch. Processing it changes nothing.
func None[M any]() Batch[M] {
	return Batch[M]{}
}

// One returns a batch with a single sync mutation.
func One[M any](m M) Batch[M] {
	return Batch[M]{Sync: []M{m}}
}

// Sync returns a batch of sync mutations applied in the given order.
func Sync[M any](ms ...M) Batch[M] {
	return Batch[M]{Sync: ms}
}

// Async returns a batch whose mutations all arrive through s.
func Async[M any](s stream.Seq[M]) Batch[M] {
	return Batch[M]{Async: s}
}

// SyncAsync returns a batch with both parts.
func SyncAsync[M any](sync []M, async stream.Seq[M]) Batch[M] {
	return Batch[M]{Sync: sync, Async: async}
}

// IsEmpty reports whether the batch carries no mutations at all.
func (b Batch[M]) IsEmpty() bool {
	return len(b.Sync) == 0 && b.Async == nil
}
