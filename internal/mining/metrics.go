package mining

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PairsProcessed counts input pairs across runs.
	PairsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "negmine",
			Subsystem: "mining",
			Name:      "pairs_processed_total",
			Help:      "Total number of input pairs processed",
		},
	)

	// TripletsWritten counts mined triplets across runs.
	TripletsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "negmine",
			Subsystem: "mining",
			Name:      "triplets_written_total",
			Help:      "Total number of triplets written",
		},
	)

	// QueriesSkipped counts queries that produced no triplet.
	// Labels: reason (no_negative)
	QueriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "negmine",
			Subsystem: "mining",
			Name:      "queries_skipped_total",
			Help:      "Total number of queries that produced no triplet",
		},
		[]string{"reason"},
	)
)

// RecordRun records the outcome of a completed mining run.
func RecordRun(stats *Stats) {
	if stats == nil {
		return
	}
	PairsProcessed.Add(float64(stats.Pairs))
	TripletsWritten.Add(float64(stats.Triplets))
	if stats.SkippedNoNegative > 0 {
		QueriesSkipped.WithLabelValues("no_negative").Add(float64(stats.SkippedNoNegative))
	}
}
