package evaluation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by a Strategy.
type Metrics struct {
	rounds        *prometheus.CounterVec
	derived       *prometheus.CounterVec
	strata        prometheus.Counter
	queries       *prometheus.CounterVec
	queryDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests and one-shot CLI runs want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deduce_evaluation_rounds_total",
				Help: "Fixpoint rounds run, by evaluator",
			},
			[]string{"evaluator"},
		),
		derived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deduce_derived_tuples_total",
				Help: "Tuples added to the model by rule evaluation, by evaluator",
			},
			[]string{"evaluator"},
		),
		strata: f.NewCounter(prometheus.CounterOpts{
			Name: "deduce_strata_evaluated_total",
			Help: "Strata evaluated to fixpoint",
		}),
		queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deduce_queries_total",
				Help: "Queries executed, by outcome",
			},
			[]string{"outcome"},
		),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "deduce_query_duration_seconds",
			Help:    "Query execution latency against the finalized model",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

func (m *Metrics) observeStratum(evaluator string, s Stats) {
	m.strata.Inc()
	m.rounds.WithLabelValues(evaluator).Add(float64(s.Rounds))
	m.derived.WithLabelValues(evaluator).Add(float64(s.Derived))
}

func (m *Metrics) observeQuery(seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(seconds)
}
