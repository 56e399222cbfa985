package stream

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

// Seq is a context-bound push sequence.
type Seq[T any] func(ctx context.Context, yield func(T) bool)

// Identity returns s unchanged. It is the default transform hook.
func Identity[T any](s Seq[T]) Seq[T] {
	return s
}

// Empty returns a sequence that completes immediately.
func Empty[T any]() Seq[T] {
	return func(context.Context, func(T) bool) {}
}

// Never returns a sequence that yields nothing and ends only with its context.
func Never[T any]() Seq[T] {
	return func(ctx context.Context, _ func(T) bool) {
		Park(ctx)
		<-ctx.Done()
	}
}

// Just yields vs in order, then completes.
func Just[T any](vs ...T) Seq[T] {
	return FromSlice(vs)
}

// FromSlice yields the elements of vs in order, then completes.
func FromSlice[T any](vs []T) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		for _, v := range vs {
			if ctx.Err() != nil || !yield(v) {
				return
			}
		}
	}
}

// FromIter adapts a pull iterator. Iteration stops when ctx ends, checked
// between elements.
func FromIter[T any](it iter.Seq[T]) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		for v := range it {
			if ctx.Err() != nil || !yield(v) {
				return
			}
		}
	}
}

// FromChan yields values received from ch until it is closed.
func FromChan[T any](ch <-chan T) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		for {
			var (
				v  T
				ok bool
			)
			select {
			case v, ok = <-ch:
			default:
				Park(ctx)
				select {
				case v, ok = <-ch:
				case <-ctx.Done():
					return
				}
			}
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// After waits for d, then yields vs. A cancelled context yields nothing.
func After[T any](d time.Duration, vs ...T) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		Park(ctx)
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		FromSlice(vs)(ctx, yield)
	}
}

// Func adapts a producer that emits through a callback and reports errors
// as values. It is a convenience for wrapping I/O in an async mutation:
//
//	stream.Func(func(ctx context.Context, emit func(Mutation)) {
//	    res, err := client.Fetch(ctx)
//	    if err != nil {
//	        emit(SetError{err})
//	        return
//	    }
//	    emit(SetResult{res})
//	})
//
// The producer is considered parked for its whole run.
func Func[T any](produce func(ctx context.Context, emit func(T))) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		Park(ctx)
		produce(ctx, func(v T) {
			if ctx.Err() != nil {
				return
			}
			if !yield(v) {
				cancel()
			}
		})
	}
}

// Prepend yields vs before the values of s.
func Prepend[T any](s Seq[T], vs ...T) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		for _, v := range vs {
			if !yield(v) {
				return
			}
		}
		s(ctx, yield)
	}
}

// Concat yields every value of each sequence in turn.
func Concat[T any](ss ...Seq[T]) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		var stopped atomic.Bool
		guarded := func(v T) bool {
			if !yield(v) {
				stopped.Store(true)
				return false
			}
			return true
		}
		for _, s := range ss {
			if stopped.Load() || ctx.Err() != nil {
				return
			}
			s(ctx, guarded)
		}
	}
}

// Map transforms each value with fn.
func Map[In, Out any](s Seq[In], fn func(In) Out) Seq[Out] {
	return func(ctx context.Context, yield func(Out) bool) {
		s(ctx, func(v In) bool {
			return yield(fn(v))
		})
	}
}

// Filter yields only the values for which keep returns true.
func Filter[T any](s Seq[T], keep func(T) bool) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		s(ctx, func(v T) bool {
			if !keep(v) {
				return true
			}
			return yield(v)
		})
	}
}

// Scan folds values into an accumulator seeded with seed and yields every
// intermediate result. Results are yielded in the order they were folded,
// even when s yields from several goroutines.
func Scan[T, A any](s Seq[T], seed A, fn func(A, T) A) Seq[A] {
	return func(ctx context.Context, yield func(A) bool) {
		var out ordered[A]
		acc := seed
		s(ctx, func(v T) bool {
			return out.push(yield, func() (A, bool) {
				acc = fn(acc, v)
				return acc, true
			})
		})
	}
}

// Dedupe drops values equal to the previously yielded one.
func Dedupe[T any](s Seq[T], equal func(a, b T) bool) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) {
		var (
			out  ordered[T]
			last T
			seen bool
		)
		s(ctx, func(v T) bool {
			return out.push(yield, func() (T, bool) {
				dup := seen && equal(last, v)
				last, seen = v, true
				return v, !dup
			})
		})
	}
}

// ordered hands values to yield one at a time, in the order next produced
// them. A goroutine that finds another one already emitting queues its
// value and returns; the emitting goroutine delivers it. yield is never
// called with the lock held, so it may re-enter the same sequence.
type ordered[T any] struct {
	mu       sync.Mutex
	pending  []T
	emitting bool
	stopped  bool
}

func (o *ordered[T]) push(yield func(T) bool, next func() (T, bool)) bool {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return false
	}
	if v, ok := next(); ok {
		o.pending = append(o.pending, v)
	}
	if o.emitting {
		o.mu.Unlock()
		return true
	}

	o.emitting = true
	for len(o.pending) > 0 {
		v := o.pending[0]
		o.pending = o.pending[1:]
		o.mu.Unlock()

		if !yield(v) {
			o.mu.Lock()
			o.stopped = true
			o.pending = nil
			o.emitting = false
			o.mu.Unlock()
			return false
		}
		o.mu.Lock()
	}
	o.pending = nil
	o.emitting = false
	o.mu.Unlock()
	return true
}

// Merge yields the values of every sequence as they arrive, each source
// running on its own goroutine. It completes when all sources complete.
func Merge[T any](ss ...Seq[T]) Seq[T] {
	switch len(ss) {
	case 0:
		return Empty[T]()
	case 1:
		return ss[0]
	}

	return func(ctx context.Context, yield func(T) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var stopped atomic.Bool
		guarded := func(v T) bool {
			if stopped.Load() {
				return false
			}
			if !yield(v) {
				stopped.Store(true)
				cancel()
				return false
			}
			return true
		}

		var wg sync.WaitGroup
		for _, s := range ss {
			childCtx, release := fork(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer release()
				s(childCtx, guarded)
			}()
		}

		Park(ctx)
		wg.Wait()
	}
}

// Collect starts s and gathers values until n have been collected, s
// completes, or ctx ends.
func Collect[T any](ctx context.Context, s Seq[T], n int) []T {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu  sync.Mutex
		out []T
	)
	s(ctx, func(v T) bool {
		mu.Lock()
		defer mu.Unlock()
		if len(out) >= n {
			return false
		}
		out = append(out, v)
		if len(out) >= n {
			cancel()
			return false
		}
		return true
	})

	mu.Lock()
	defer mu.Unlock()
	return out
}
