package demo

import (
	"context"

	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/stream"
)

// CounterReactor is the concrete type of a Counter reactor.
type CounterReactor = reactor.Reactor[CounterAction, CounterMutation, CounterState]

// DashboardState is the state of a Dashboard.
type DashboardState struct {
	Title   string `json:"title"`
	Count   int    `json:"count"`
	Pending int    `json:"pending"`
	Updates int    `json:"updates"` // child states seen
}

// DashboardAction is implemented by the dashboard actions.
type DashboardAction interface{ dashboardAction() }

type (
	// Rename sets the title.
	Rename struct {
		Title string `yaml:"title"`
	}
	// Bump forwards an increment to the child counter.
	Bump struct {
		By int `yaml:"by"`
	}
)

func (Rename) dashboardAction() {}
func (Bump) dashboardAction()   {}

// DashboardMutation is a change to a DashboardState.
type DashboardMutation struct {
	Title *string       `yaml:"title"`
	Child *CounterState `yaml:"child"`
}

// Dashboard is the logic of a dashboard reactor. It owns a child Counter.
type Dashboard struct {
	child *CounterReactor
}

func (d Dashboard) Mutate(a DashboardAction) reactor.Batch[DashboardMutation] {
	switch a := a.(type) {
	case Rename:
		return reactor.One(DashboardMutation{Title: &a.Title})
	case Bump:
		return reactor.Async(stream.Func(func(context.Context, func(DashboardMutation)) {
			d.child.Action(Increment{By: a.By})
		}))
	default:
		return reactor.None[DashboardMutation]()
	}
}

func (Dashboard) Reduce(s DashboardState, m DashboardMutation) DashboardState {
	if m.Title != nil {
		s.Title = *m.Title
	}
	if m.Child != nil {
		s.Count = m.Child.Value
		s.Pending = m.Child.Pending
		s.Updates++
	}
	return s
}

func (d Dashboard) TransformMutation(mutations stream.Seq[DashboardMutation]) stream.Seq[DashboardMutation] {
	return stream.Merge(mutations, reactor.Forward(d.child, func(c CounterState) DashboardMutation {
		return DashboardMutation{Child: &c}
	}))
}

// NewDashboard starts a dashboard and its child counter. Disposing the
// dashboard disposes the child.
func NewDashboard(title string, opts ...reactor.Option) (*reactor.Reactor[DashboardAction, DashboardMutation, DashboardState], *CounterReactor) {
	child := NewCounter(CounterState{}, append(opts[:len(opts):len(opts)], reactor.WithName("counter"))...)
	opts = append([]reactor.Option{reactor.WithName("dashboard")}, opts...)
	d := reactor.New[DashboardAction, DashboardMutation, DashboardState](Dashboard{child: child}, DashboardState{Title: title}, opts...)
	d.Bag().Add(child.Dispose)
	return d, child
}
