package demo

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/reactor/internal/reactor"
)

// Factory builds an instance from an optional JSON initial state.
type Factory func(initial json.RawMessage, opts ...reactor.Option) (Instance, error)

// Entry describes a registered reactor.
type Entry struct {
	Name        string
	Description string
	New         Factory
}

// Registry maps reactor names to factories. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns a registry holding entries.
// Panics on a duplicate name.
func NewRegistry(entries ...Entry) *Registry {
	reg := &Registry{entries: make(map[string]Entry)}
	for _, e := range entries {
		if err := reg.Register(e); err != nil {
			panic(err)
		}
	}
	return reg
}

// Register adds e. Names are unique.
func (reg *Registry) Register(e Entry) error {
	if e.Name == "" || e.New == nil {
		return fmt.Errorf("register: entry needs a name and a factory")
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, dup := reg.entries[e.Name]; dup {
		return fmt.Errorf("register: duplicate reactor %q", e.Name)
	}
	reg.entries[e.Name] = e
	return nil
}

// Lookup returns the entry registered under name.
func (reg *Registry) Lookup(name string) (Entry, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.entries[name]
	return e, ok
}

// Names returns the registered names in order.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.entries))
	for name := range reg.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Fruits is the corpus of the registered search reactor.
var Fruits = []string{"apple", "apricot", "banana", "blackberry", "cherry", "grape", "grapefruit", "lemon", "lime", "mango"}

// Default returns a registry with counter, search and dashboard.
func Default() *Registry {
	return NewRegistry(
		Entry{
			Name:        "counter",
			Description: "integer counter with delayed additions",
			New:         newCounterInstance,
		},
		Entry{
			Name:        "search",
			Description: "search over a fixed fruit list; the query \"error\" fails",
			New:         newSearchInstance,
		},
		Entry{
			Name:        "dashboard",
			Description: "titled view of a child counter",
			New:         newDashboardInstance,
		},
	)
}

func counterActions() map[string]decodeFunc[CounterAction] {
	return map[string]decodeFunc[CounterAction]{
		"increment": act(func(v Increment) CounterAction { return v }),
		"decrement": act(func(v Decrement) CounterAction { return v }),
		"reset":     act(func(v Reset) CounterAction { return v }),
		"add_later": act(func(v AddLater) CounterAction { return v }),
	}
}

func newCounterInstance(initial json.RawMessage, opts ...reactor.Option) (Instance, error) {
	s, err := initialState(initial, CounterState{})
	if err != nil {
		return nil, err
	}
	return newInstance(NewCounter(s, opts...), counterActions()), nil
}

func newSearchInstance(initial json.RawMessage, opts ...reactor.Option) (Instance, error) {
	s, err := initialState(initial, SearchState{})
	if err != nil {
		return nil, err
	}
	searcher := MemorySearcher{Items: Fruits, Delay: 5 * time.Millisecond, FailOn: "error"}
	opts = append([]reactor.Option{reactor.WithName("search")}, opts...)
	r := reactor.New[SearchAction, SearchMutation, SearchState](NewSearchLogic(searcher), s, opts...)
	return newInstance(r, map[string]decodeFunc[SearchAction]{
		"set_query": act(func(v SetQuery) SearchAction { return v }),
		"retry":     act(func(v Retry) SearchAction { return v }),
	}), nil
}

func newDashboardInstance(initial json.RawMessage, opts ...reactor.Option) (Instance, error) {
	s, err := initialState(initial, DashboardState{Title: "dashboard"})
	if err != nil {
		return nil, err
	}
	d, _ := NewDashboard(s.Title, opts...)
	return newInstance(d, map[string]decodeFunc[DashboardAction]{
		"rename": act(func(v Rename) DashboardAction { return v }),
		"bump":   act(func(v Bump) DashboardAction { return v }),
	}), nil
}
