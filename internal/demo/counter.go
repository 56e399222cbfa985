package demo

import (
	"time"

	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/stream"
)

// CounterState is the state of a Counter.
type CounterState struct {
	Value   int `json:"value"`
	Pending int `json:"pending"`
}

// CounterAction is implemented by the counter actions.
type CounterAction interface{ counterAction() }

type (
	// Increment adds By (1 when zero).
	Increment struct {
		By int `yaml:"by"`
	}
	// Decrement subtracts By (1 when zero).
	Decrement struct {
		By int `yaml:"by"`
	}
	// Reset sets the value to zero.
	Reset struct{}
	// AddLater adds By after Delay. Pending counts the additions in flight.
	AddLater struct {
		By    int           `yaml:"by"`
		Delay time.Duration `yaml:"delay"`
	}
)

func (Increment) counterAction() {}
func (Decrement) counterAction() {}
func (Reset) counterAction()     {}
func (AddLater) counterAction()  {}

// CounterMutation is a change to a CounterState.
type CounterMutation struct {
	Add     int  `yaml:"add"`
	Reset   bool `yaml:"reset"`
	Pending int  `yaml:"pending"`
}

// Counter is the logic of a counter reactor.
type Counter struct{}

func step(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

func (Counter) Mutate(a CounterAction) reactor.Batch[CounterMutation] {
	switch a := a.(type) {
	case Increment:
		return reactor.One(CounterMutation{Add: step(a.By)})
	case Decrement:
		return reactor.One(CounterMutation{Add: -step(a.By)})
	case Reset:
		return reactor.One(CounterMutation{Reset: true})
	case AddLater:
		return reactor.SyncAsync(
			[]CounterMutation{{Pending: 1}},
			stream.After(a.Delay, CounterMutation{Add: a.By, Pending: -1}),
		)
	default:
		return reactor.None[CounterMutation]()
	}
}

func (Counter) Reduce(s CounterState, m CounterMutation) CounterState {
	if m.Reset {
		s.Value = 0
	}
	s.Value += m.Add
	s.Pending += m.Pending
	return s
}

// NewCounter starts a counter reactor.
func NewCounter(initial CounterState, opts ...reactor.Option) *reactor.Reactor[CounterAction, CounterMutation, CounterState] {
	opts = append([]reactor.Option{reactor.WithName("counter")}, opts...)
	return reactor.New[CounterAction, CounterMutation, CounterState](Counter{}, initial, opts...)
}
