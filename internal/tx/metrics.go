package tx

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricTransactions   = "transactions_total"
	MetricDatomsWritten  = "datoms_written_total"
	MetricSchemaChanges  = "schema_changes_total"
	MetricCommitDuration = "commit_duration_seconds"
)

// Outcome labels of MetricTransactions.
const (
	OutcomeCommitted    = "committed"
	OutcomeAborted      = "aborted"
	OutcomeConflict     = "conflict"
	OutcomeCommitFailed = "commit_failed"
)

type metrics struct {
	transactions   *prometheus.CounterVec
	datomsWritten  prometheus.Counter
	schemaChanges  prometheus.Counter
	commitDuration prometheus.Histogram
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "causetdb",
				Name:      MetricTransactions,
				Help:      "Transactions finished, by outcome.",
			},
			[]string{"outcome"},
		),
		datomsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "causetdb",
				Name:      MetricDatomsWritten,
				Help:      "Datoms asserted or retracted by committed transactions.",
			},
		),
		schemaChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "causetdb",
				Name:      MetricSchemaChanges,
				Help:      "Committed transactions that changed the schema.",
			},
		),
		commitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "causetdb",
				Name:      MetricCommitDuration,
				Help:      "Time from Commit to the storage write returning.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	if r == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.transactions, m.datomsWritten, m.schemaChanges, m.commitDuration} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
