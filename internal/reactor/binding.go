package reactor

// Binding couples one field derived from the state with a way to change it.
//
// Get reads from the latest committed state. Set either sends an action
// (BindAction) or injects a mutation (BindMutation).
type Binding[V any] struct {
	get       func() V
	set       func(V)
	subscribe func(func(V)) Cancel
}

// Get returns the field's value in the current state.
func (b Binding[V]) Get() V {
	return b.get()
}

// Set dispatches v.
func (b Binding[V]) Set(v V) {
	b.set(v)
}

// Subscribe calls fn with the field's value for the current state and for
// every commit, on the main loop.
func (b Binding[V]) Subscribe(fn func(V)) Cancel {
	return b.subscribe(fn)
}

// BindAction binds the field read by get to an action built by toAction.
func BindAction[A, M, S, V any](r *Reactor[A, M, S], get func(S) V, toAction func(V) A) Binding[V] {
	return Binding[V]{
		get: func() V { return get(r.Read()) },
		set: func(v V) { r.Action(toAction(v)) },
		subscribe: func(fn func(V)) Cancel {
			return r.Subscribe(func(s S) { fn(get(s)) })
		},
	}
}

// BindMutation binds the field read by get to a mutation built by
// toMutation, which skips Logic.Mutate.
func BindMutation[A, M, S, V any](r *Reactor[A, M, S], get func(S) V, toMutation func(V) M) Binding[V] {
	return Binding[V]{
		get: func() V { return get(r.Read()) },
		set: func(v V) { r.Mutate(toMutation(v)) },
		subscribe: func(fn func(V)) Cancel {
			return r.Subscribe(func(s S) { fn(get(s)) })
		},
	}
}
