package reactor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/stream"
)

func appendLogic() Funcs[string, string, []string] {
	return Funcs[string, string, []string]{
		MutateFunc: func(a string) Batch[string] {
			return Sync(a+"1", a+"2", a+"3")
		},
		ReduceFunc: func(s []string, m string) []string {
			return append(append([]string(nil), s...), m)
		},
	}
}

func TestReactor_SyncMutationsApplyInSubmissionOrder(t *testing.T) {
	r, loop := newTestReactor(t, appendLogic(), nil)
	rec := record(r)

	r.Action("a")
	r.Action("b")
	barrier(t, loop)

	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "b2", "b3"}, r.Read())

	commits := rec.all()
	require.Len(t, commits, 7, "initial + one commit per mutation")
	for i := 1; i < len(commits); i++ {
		assert.Greater(t, commits[i].Seq, commits[i-1].Seq)
		assert.Equal(t, KindSync, commits[i].Kind)
	}
}

func TestReactor_SyncMutationsVisibleWhenActionReturns(t *testing.T) {
	r, _ := newTestReactor(t, counter{}, 0)

	r.Action(5)
	assert.Equal(t, 5, r.Read())
}

func TestReactor_ObserversRunOnMainLoop(t *testing.T) {
	r, loop := newTestReactor(t, counter{asyncDelay: 5 * time.Millisecond}, 0)
	rec := record(r)

	r.Action(1)
	waitFor(t, func() bool { return rec.len() == 3 })
	barrier(t, loop)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, on := range rec.onLoop {
		assert.True(t, on, "commit %d delivered off the main loop", i)
	}
}

func TestReactor_EmptyBatchLeavesStateUnchanged(t *testing.T) {
	logic := Funcs[string, int, int]{
		MutateFunc: func(string) Batch[int] { return None[int]() },
		ReduceFunc: func(s, m int) int { return s + m },
	}
	r, loop := newTestReactor(t, logic, 42)
	rec := record(r)

	r.Action("noop")
	r.Action("noop")
	barrier(t, loop)

	assert.Equal(t, 42, r.Read())
	assert.Equal(t, []CommitKind{KindInitial}, rec.kinds(), "no commit beyond the initial one")
}

func TestReactor_ConcurrentActionsAreNotLost(t *testing.T) {
	r, _ := newTestReactor(t, counter{}, 0)

	const goroutines, perGoroutine = 100, 100
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				r.Action(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, r.Read())
}

func TestReactor_SyncThenAsyncCommits(t *testing.T) {
	r, _ := newTestReactor(t, counter{asyncDelay: 20 * time.Millisecond}, 0)
	rec := record(r)

	r.Action(1)
	assert.Equal(t, 1, r.Read(), "sync part committed before Action returns")

	waitFor(t, func() bool { return rec.len() == 3 })
	assert.Equal(t, []int{0, 1, 2}, rec.states())
	assert.Equal(t, []CommitKind{KindInitial, KindSync, KindAsync}, rec.kinds())
}

func TestReactor_SyncAndAsyncShareOneAccumulator(t *testing.T) {
	r, _ := newTestReactor(t, counter{asyncDelay: 10 * time.Millisecond}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Action(1)
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return r.Read() == 40 })
}

func TestReactor_PrependedMutationCommitsBeforeAnyAction(t *testing.T) {
	logic := Funcs[int, int, int]{
		MutateFunc: func(a int) Batch[int] { return One(a) },
		ReduceFunc: func(s, m int) int { return s*10 + m },
		MutationHook: func(ms stream.Seq[int]) stream.Seq[int] {
			return stream.Prepend(ms, 7)
		},
	}
	r, loop := newTestReactor(t, logic, 0)

	assert.Equal(t, 7, r.Read(), "bootstrap mutation committed when New returns")
	assert.Equal(t, KindAsync, r.Current().Kind)

	rec := record(r)
	r.Action(1)
	barrier(t, loop)
	assert.Equal(t, []int{7, 71}, rec.states())
}

func TestReactor_NewOnMainLoop(t *testing.T) {
	loop := newTestLoop(t)
	logic := Funcs[int, int, int]{
		ReduceFunc: func(s, m int) int { return s + m },
		MutationHook: func(ms stream.Seq[int]) stream.Seq[int] {
			return stream.Prepend(ms, 3)
		},
	}

	var r *Reactor[int, int, int]
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Do(func() {
			r = New[int, int, int](logic, 0, WithLoop(loop), WithLogger(discardLogger()))
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("New deadlocked on the main loop")
	}
	defer r.Dispose()
	assert.Equal(t, 3, r.Read())
}

func TestReactor_DisposeStopsCommits(t *testing.T) {
	r, loop := newTestReactor(t, counter{asyncDelay: 10 * time.Millisecond}, 0)
	rec := record(r)
	barrier(t, loop)

	r.Action(1)
	r.Dispose()
	r.Dispose()

	assert.NotPanics(t, func() {
		r.Action(1)
		r.Mutate(1)
	})
	time.Sleep(30 * time.Millisecond)
	barrier(t, loop)

	assert.True(t, r.Disposed())
	assert.Equal(t, 1, r.Read(), "async part of the batch never committed")
	assert.Equal(t, 2, rec.len())
	assert.Zero(t, r.Bag().Len())

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Dispose")
	}
}

func TestReactor_DisposingBagTearsDown(t *testing.T) {
	r, loop := newTestReactor(t, counter{asyncDelay: 10 * time.Millisecond}, 0)
	rec := record(r)
	barrier(t, loop)

	r.Action(1)
	r.Bag().Dispose()

	assert.True(t, r.Disposed())
	assert.NotPanics(t, func() {
		r.Action(1)
		r.Mutate(1)
	})
	time.Sleep(30 * time.Millisecond)
	barrier(t, loop)

	assert.Equal(t, 1, r.Read(), "no commit after the bag is disposed")
	assert.Equal(t, 2, rec.len())

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after disposing the bag")
	}

	called := false
	cancel := r.Subscribe(func(int) { called = true })
	cancel()
	barrier(t, loop)
	assert.False(t, called, "subscribing to a torn-down reactor delivers nothing")
}

func TestReactor_DirectMutationCommitsOnLoop(t *testing.T) {
	r, loop := newTestReactor(t, counter{}, 10)
	rec := record(r)

	r.Mutate(5)
	assert.Equal(t, 15, r.Read())
	barrier(t, loop)

	assert.Equal(t, []int{10, 15}, rec.states())
	assert.Equal(t, []CommitKind{KindInitial, KindAsync}, rec.kinds())
	rec.mu.Lock()
	assert.Equal(t, []bool{true, true}, rec.onLoop)
	rec.mu.Unlock()
}

func TestReactor_MutateFromObserverFoldsInline(t *testing.T) {
	r, loop := newTestReactor(t, counter{}, 0)
	rec := record(r)

	r.Subscribe(func(s int) {
		if s == 1 {
			r.Mutate(10)
			assert.Equal(t, 11, r.Read(), "folded before Mutate returned")
		}
	})
	r.Action(1)
	barrier(t, loop)

	assert.Equal(t, 11, r.Read())
	assert.Equal(t, []int{0, 1, 11}, rec.states())
	assert.Equal(t, []CommitKind{KindInitial, KindSync, KindAsync}, rec.kinds())
}

func TestReactor_AsyncPartDoesNotBlockSender(t *testing.T) {
	release := make(chan struct{})
	logic := Funcs[int, int, int]{
		MutateFunc: func(a int) Batch[int] {
			return Async[int](func(ctx context.Context, yield func(int) bool) {
				select {
				case <-release:
					yield(a)
				case <-ctx.Done():
				}
			})
		},
		ReduceFunc: func(s, m int) int { return s + m },
	}
	r, loop := newTestReactor(t, logic, 0)

	returned := make(chan struct{})
	go func() {
		r.Action(5)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Action waited for its async part")
	}
	assert.Equal(t, 0, r.Read())

	close(release)
	require.Eventually(t, func() bool { return r.Read() == 5 }, time.Second, time.Millisecond)
	barrier(t, loop)
}

func TestReactor_TransformAction(t *testing.T) {
	logic := Funcs[int, int, int]{
		MutateFunc: func(a int) Batch[int] { return One(a) },
		ReduceFunc: func(s, m int) int { return s + m },
		ActionHook: func(as stream.Seq[int]) stream.Seq[int] {
			return stream.Filter(as, func(a int) bool { return a > 0 })
		},
	}
	r, _ := newTestReactor(t, logic, 0)

	r.Action(2)
	r.Action(-5)
	r.Action(3)
	assert.Equal(t, 5, r.Read())
}

func TestReactor_TransformState(t *testing.T) {
	logic := Funcs[int, int, int]{
		MutateFunc: func(a int) Batch[int] { return One(a) },
		ReduceFunc: func(s, m int) int { return s + m },
		StateHook: func(ss stream.Seq[int]) stream.Seq[int] {
			return stream.Map(ss, func(s int) int { return s * 100 })
		},
	}
	r, _ := newTestReactor(t, logic, 0)

	r.Action(1)
	assert.Equal(t, 100, r.Read(), "committed state is the transformed one")
	r.Action(1)
	assert.Equal(t, 200, r.Read(), "accumulator keeps the untransformed state")
	assert.Equal(t, KindSync, r.Current().Kind)
}

func TestReactor_TransformHooksInvokedOnce(t *testing.T) {
	var actionCalls, mutationCalls, stateCalls int
	logic := Funcs[int, int, int]{
		ActionHook:   func(s stream.Seq[int]) stream.Seq[int] { actionCalls++; return s },
		MutationHook: func(s stream.Seq[int]) stream.Seq[int] { mutationCalls++; return s },
		StateHook:    func(s stream.Seq[int]) stream.Seq[int] { stateCalls++; return s },
	}
	r, _ := newTestReactor(t, logic, 0)
	r.Action(1)
	r.Mutate(1)

	assert.Equal(t, 1, actionCalls)
	assert.Equal(t, 1, mutationCalls)
	assert.Equal(t, 1, stateCalls)
}

func TestReactor_SubscribeDeliversCurrentThenCommits(t *testing.T) {
	r, loop := newTestReactor(t, counter{}, 0)
	r.Action(4)

	var mu sync.Mutex
	var got []int
	cancel := r.Subscribe(func(s int) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	})
	r.Action(1)
	barrier(t, loop)

	cancel()
	cancel()
	r.Action(1)
	barrier(t, loop)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{4, 5}, got)
}

func TestReactor_NestedCommitsDeliveredInOrder(t *testing.T) {
	r, loop := newTestReactor(t, counter{}, 0)

	// The first observer reacts to 1 by sending another action from the
	// loop, which commits while the commit of 1 is still being delivered.
	r.Subscribe(func(s int) {
		if s == 1 {
			r.Action(10)
		}
	})
	rec := record(r)

	r.Action(1)
	barrier(t, loop)

	assert.Equal(t, []int{0, 1, 11}, rec.states())
	commits := rec.all()
	for i := 1; i < len(commits); i++ {
		assert.Greater(t, commits[i].Seq, commits[i-1].Seq)
	}
}

func TestReactor_Stream(t *testing.T) {
	r, _ := newTestReactor(t, counter{}, 0)
	r.Action(3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, []int{3}, stream.Collect(ctx, r.Stream(), 1))
}

func TestReactor_CommitsEndOnDispose(t *testing.T) {
	loop := newTestLoop(t)
	r := New[int, int, int](counter{}, 0, WithLoop(loop), WithLogger(discardLogger()))

	done := make(chan []Commit[int])
	go func() {
		done <- stream.Collect(context.Background(), r.Commits(), 100)
	}()
	waitFor(t, func() bool { return r.Bag().Len() == 1 })
	barrier(t, loop)
	r.Dispose()

	select {
	case got := <-done:
		require.NotEmpty(t, got)
		assert.Equal(t, KindInitial, got[0].Kind)
	case <-time.After(time.Second):
		t.Fatal("Commits did not end on Dispose")
	}
}

func TestReactor_MutatePanicPropagates(t *testing.T) {
	logic := Funcs[int, int, int]{
		MutateFunc: func(int) Batch[int] { panic("bad action") },
	}
	r, _ := newTestReactor(t, logic, 0)

	defer func() {
		v := recover()
		require.NotNil(t, v)
		assert.True(t, IsLogicPanic(v))
		p := v.(*LogicPanic)
		assert.Equal(t, "mutate", p.Op)
		assert.Equal(t, "bad action", p.Value)
	}()
	r.Action(1)
}

func TestReactor_ReducePanicPropagatesToSender(t *testing.T) {
	logic := Funcs[int, int, int]{
		MutateFunc: func(a int) Batch[int] { return One(a) },
		ReduceFunc: func(int, int) int { panic("bad mutation") },
	}
	r, loop := newTestReactor(t, logic, 9)

	assert.Panics(t, func() { r.Action(1) })
	assert.Equal(t, 9, r.Read())
	assert.True(t, loop.Do(func() {}), "loop survives")
}

func TestReactor_IDAndName(t *testing.T) {
	r, _ := newTestReactor(t, counter{}, 0, WithName("counter"))

	assert.Equal(t, "reactor-1", r.ID())
	assert.Equal(t, "counter", r.Name())
	assert.Equal(t, int64(1), r.Current().Seq)
}

func TestReactor_WithClockContinuesNumbering(t *testing.T) {
	r, _ := newTestReactor(t, counter{}, 0, WithClock(NewClockAt(41)))

	assert.Equal(t, int64(42), r.Current().Seq)
	r.Action(1)
	assert.Equal(t, int64(43), r.Current().Seq)
}

func TestReactor_PrimeTimeoutDoesNotBlockForever(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	logic := Funcs[int, int, int]{
		MutationHook: func(ms stream.Seq[int]) stream.Seq[int] {
			return func(ctx context.Context, yield func(int) bool) {
				select {
				case <-release:
				case <-ctx.Done():
				}
			}
		},
	}

	start := time.Now()
	r, _ := newTestReactor(t, logic, 0, WithPrimeTimeout(20*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, r.Disposed())
}
