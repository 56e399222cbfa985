package reactor

import "github.com/roach88/reactor/internal/stream"

// Logic is the consumer-supplied behavior of a reactor.
//
// Mutate must not touch the state. Reduce must be pure: it returns the
// next state and has no side effects. Both are expected to be total;
// domain failures are expressed as mutations. A panic in either is logged
// and propagated.
type Logic[A, M, S any] interface {
	Mutate(action A) Batch[M]
	Reduce(state S, mutation M) S
}

// ActionTransformer is implemented by logic that rewrites the action stream.
type ActionTransformer[A any] interface {
	TransformAction(actions stream.Seq[A]) stream.Seq[A]
}

// MutationTransformer is implemented by logic that rewrites the async
// mutation stream, e.g. to prepend a bootstrap mutation or merge in the
// states of a child reactor (see Forward).
type MutationTransformer[M any] interface {
	TransformMutation(mutations stream.Seq[M]) stream.Seq[M]
}

// StateTransformer is implemented by logic that rewrites the state stream
// before commit.
type StateTransformer[S any] interface {
	TransformState(states stream.Seq[S]) stream.Seq[S]
}

// Funcs builds a Logic from plain functions. Nil hooks are identity.
type Funcs[A, M, S any] struct {
	MutateFunc func(A) Batch[M]
	ReduceFunc func(S, M) S

	ActionHook   func(stream.Seq[A]) stream.Seq[A]
	MutationHook func(stream.Seq[M]) stream.Seq[M]
	StateHook    func(stream.Seq[S]) stream.Seq[S]
}

// Mutate calls MutateFunc. A nil MutateFunc yields an empty batch.
func (f Funcs[A, M, S]) Mutate(action A) Batch[M] {
	if f.MutateFunc == nil {
		return None[M]()
	}
	return f.MutateFunc(action)
}

// Reduce calls ReduceFunc. A nil ReduceFunc keeps the state.
func (f Funcs[A, M, S]) Reduce(state S, mutation M) S {
	if f.ReduceFunc == nil {
		return state
	}
	return f.ReduceFunc(state, mutation)
}

func (f Funcs[A, M, S]) TransformAction(actions stream.Seq[A]) stream.Seq[A] {
	if f.ActionHook == nil {
		return actions
	}
	return f.ActionHook(actions)
}

func (f Funcs[A, M, S]) TransformMutation(mutations stream.Seq[M]) stream.Seq[M] {
	if f.MutationHook == nil {
		return mutations
	}
	return f.MutationHook(mutations)
}

func (f Funcs[A, M, S]) TransformState(states stream.Seq[S]) stream.Seq[S] {
	if f.StateHook == nil {
		return states
	}
	return f.StateHook(states)
}

func transformAction[A, M, S any](logic Logic[A, M, S], s stream.Seq[A]) stream.Seq[A] {
	if t, ok := logic.(ActionTransformer[A]); ok {
		return t.TransformAction(s)
	}
	return s
}

func transformMutation[A, M, S any](logic Logic[A, M, S], s stream.Seq[M]) stream.Seq[M] {
	if t, ok := logic.(MutationTransformer[M]); ok {
		return t.TransformMutation(s)
	}
	return s
}

func transformState[A, M, S any](logic Logic[A, M, S], s stream.Seq[S]) stream.Seq[S] {
	if t, ok := logic.(StateTransformer[S]); ok {
		return t.TransformState(s)
	}
	return s
}
