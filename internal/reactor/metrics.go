package reactor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by reactors.
//
// Every series is labelled with the reactor name, not its ID, so the
// cardinality stays bounded by the number of reactor kinds.
type Metrics struct {
	actions   *prometheus.CounterVec
	mutations *prometheus.CounterVec
	commits   *prometheus.CounterVec
	fold      *prometheus.HistogramVec
	live      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactor_actions_total",
			Help:      "Actions processed by Mutate",
		}, []string{"reactor"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactor_mutations_total",
			Help:      "Mutations folded into state, by path",
		}, []string{"reactor", "kind"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactor_commits_total",
			Help:      "States committed on the main loop, by kind",
		}, []string{"reactor", "kind"}),
		fold: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reactor_fold_duration_seconds",
			Help:      "Time spent in Reduce per mutation",
			Buckets:   []float64{.00001, .0001, .001, .01, .1},
		}, []string{"reactor"}),
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reactor_live",
			Help:      "Reactors constructed and not yet disposed",
		}, []string{"reactor"}),
	}
	if reg != nil {
		reg.MustRegister(m.actions, m.mutations, m.commits, m.fold, m.live)
	}
	return m
}

func (m *Metrics) action(name string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(name).Inc()
}

func (m *Metrics) mutation(name string, kind CommitKind) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(name, string(kind)).Inc()
}

func (m *Metrics) commit(name string, kind CommitKind) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(name, string(kind)).Inc()
}

func (m *Metrics) observeFold(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.fold.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) started(name string) {
	if m == nil {
		return
	}
	m.live.WithLabelValues(name).Inc()
}

func (m *Metrics) disposed(name string) {
	if m == nil {
		return
	}
	m.live.WithLabelValues(name).Dec()
}
