package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/reactor"
)

func TestNewLoop(t *testing.T) {
	loop := NewLoop(t)

	ran := false
	loop.Post(func() { ran = true })
	Barrier(t, loop)
	assert.True(t, ran, "posted tasks run before the barrier returns")
	assert.False(t, loop.OnLoop())

	var inside bool
	require.True(t, loop.Do(func() { inside = loop.OnLoop() }))
	assert.True(t, inside)
}

func TestOptions(t *testing.T) {
	opts, loop := Options(t)
	a := reactor.New[int, int, int](adder(), 0, opts...)
	b := reactor.New[int, int, int](adder(), 0, opts...)
	defer a.Dispose()
	defer b.Dispose()

	assert.Equal(t, "r1", a.ID())
	assert.Equal(t, "r2", b.ID(), "options share one generator")
	assert.Same(t, loop, a.Loop())
}

func TestOptions_CustomIDs(t *testing.T) {
	opts, _ := Options(t, "left")
	r := reactor.New[int, int, int](adder(), 0, opts...)
	defer r.Dispose()
	assert.Equal(t, "left", r.ID())
}

func adder() reactor.Funcs[int, int, int] {
	return reactor.Funcs[int, int, int]{
		MutateFunc: func(a int) reactor.Batch[int] { return reactor.One(a) },
		ReduceFunc: func(s, m int) int { return s + m },
	}
}
