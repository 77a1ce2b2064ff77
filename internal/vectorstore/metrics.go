// Package vectorstore provides Prometheus metrics for index operations.
package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PointsUpserted counts points written to the index.
	// Labels: provider (chromem, qdrant)
	PointsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "negmine",
			Subsystem: "vectorstore",
			Name:      "points_upserted_total",
			Help:      "Total number of points upserted to the index",
		},
		[]string{"provider"},
	)

	// UpsertsTotal counts upsert operations.
	// Labels: provider, result (success, error)
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "negmine",
			Subsystem: "vectorstore",
			Name:      "upserts_total",
			Help:      "Total number of upsert operations",
		},
		[]string{"provider", "result"},
	)

	// QueriesTotal counts batch query operations.
	// Labels: provider, result (success, error)
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "negmine",
			Subsystem: "vectorstore",
			Name:      "queries_total",
			Help:      "Total number of batch query operations",
		},
		[]string{"provider", "result"},
	)

	// OperationDuration tracks how long index operations take.
	// Labels: provider, operation (upsert, query_batch)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "negmine",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
)

// RecordUpsert records the outcome of an upsert operation.
func RecordUpsert(provider string, points int, success bool) {
	if success {
		UpsertsTotal.WithLabelValues(provider, "success").Inc()
		PointsUpserted.WithLabelValues(provider).Add(float64(points))
	} else {
		UpsertsTotal.WithLabelValues(provider, "error").Inc()
	}
}

// RecordQuery records the outcome of a batch query operation.
func RecordQuery(provider string, success bool) {
	if success {
		QueriesTotal.WithLabelValues(provider, "success").Inc()
	} else {
		QueriesTotal.WithLabelValues(provider, "error").Inc()
	}
}

// ObserveOperation records the duration of an index operation.
func ObserveOperation(provider, operation string, d time.Duration) {
	OperationDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}
