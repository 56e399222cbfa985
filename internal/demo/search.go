package demo

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/stream"
)

// Searcher runs a query. Implementations must honor ctx.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// SearchState is the state of a Search reactor.
type SearchState struct {
	Ready   bool     `json:"ready"`
	Query   string   `json:"query"`
	Loading bool     `json:"loading"`
	Results []string `json:"results"`
	Err     string   `json:"error,omitempty"`
}

// SearchAction is implemented by the search actions.
type SearchAction interface{ searchAction() }

type (
	// SetQuery starts a search for Query. An empty query clears the results.
	SetQuery struct {
		Query string `yaml:"query"`
	}
	// Retry runs the current query again.
	Retry struct{}
)

func (SetQuery) searchAction() {}
func (Retry) searchAction()    {}

// SearchMutation is a change to a SearchState. Results and Err carry the
// query they belong to; stale ones are dropped by Reduce.
type SearchMutation struct {
	Kind    string   `yaml:"kind"` // ready, query, results, error
	Query   string   `yaml:"query"`
	Results []string `yaml:"results"`
	Err     string   `yaml:"error"`
}

// Search is the logic of a search reactor.
type Search struct {
	searcher Searcher

	mu      sync.Mutex
	current string // last query, for Retry
}

// NewSearchLogic returns search logic backed by s.
func NewSearchLogic(s Searcher) *Search {
	return &Search{searcher: s}
}

func (l *Search) Mutate(a SearchAction) reactor.Batch[SearchMutation] {
	switch a := a.(type) {
	case SetQuery:
		l.mu.Lock()
		l.current = a.Query
		l.mu.Unlock()
		if a.Query == "" {
			return reactor.One(SearchMutation{Kind: "query"})
		}
		return reactor.SyncAsync([]SearchMutation{{Kind: "query", Query: a.Query}}, l.run(a.Query))
	case Retry:
		l.mu.Lock()
		q := l.current
		l.mu.Unlock()
		if q == "" {
			return reactor.None[SearchMutation]()
		}
		return reactor.SyncAsync([]SearchMutation{{Kind: "query", Query: q}}, l.run(q))
	default:
		return reactor.None[SearchMutation]()
	}
}

func (l *Search) run(query string) stream.Seq[SearchMutation] {
	return stream.Func(func(ctx context.Context, emit func(SearchMutation)) {
		results, err := l.searcher.Search(ctx, query)
		if err != nil {
			emit(SearchMutation{Kind: "error", Query: query, Err: err.Error()})
			return
		}
		emit(SearchMutation{Kind: "results", Query: query, Results: results})
	})
}

func (*Search) Reduce(s SearchState, m SearchMutation) SearchState {
	switch m.Kind {
	case "ready":
		s.Ready = true
	case "query":
		s.Query = m.Query
		s.Loading = m.Query != ""
		s.Results = nil
		s.Err = ""
	case "results":
		if m.Query != s.Query {
			return s
		}
		s.Loading = false
		s.Results = m.Results
	case "error":
		if m.Query != s.Query {
			return s
		}
		s.Loading = false
		s.Err = m.Err
	}
	return s
}

// TransformAction drops a SetQuery that repeats the previous one.
func (*Search) TransformAction(actions stream.Seq[SearchAction]) stream.Seq[SearchAction] {
	return stream.Dedupe(actions, func(a, b SearchAction) bool {
		qa, okA := a.(SetQuery)
		qb, okB := b.(SetQuery)
		return okA && okB && qa == qb
	})
}

// TransformMutation marks the reactor ready before anything else happens.
func (*Search) TransformMutation(mutations stream.Seq[SearchMutation]) stream.Seq[SearchMutation] {
	return stream.Prepend(mutations, SearchMutation{Kind: "ready"})
}

// NewSearch starts a search reactor backed by s.
func NewSearch(s Searcher, opts ...reactor.Option) *reactor.Reactor[SearchAction, SearchMutation, SearchState] {
	opts = append([]reactor.Option{reactor.WithName("search")}, opts...)
	return reactor.New[SearchAction, SearchMutation, SearchState](NewSearchLogic(s), SearchState{}, opts...)
}

// ErrSearchFailed is returned by MemorySearcher for its FailOn query.
var ErrSearchFailed = errors.New("search failed")

// MemorySearcher matches a query as a case-insensitive substring of Items.
type MemorySearcher struct {
	Items  []string
	Delay  time.Duration
	FailOn string
}

func (m MemorySearcher) Search(ctx context.Context, query string) ([]string, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if m.FailOn != "" && query == m.FailOn {
		return nil, ErrSearchFailed
	}

	q := strings.ToLower(query)
	var out []string
	for _, item := range m.Items {
		if strings.Contains(strings.ToLower(item), q) {
			out = append(out, item)
		}
	}
	slices.Sort(out)
	return out, nil
}
