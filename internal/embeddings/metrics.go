package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/negmine/internal/embeddings"

// Metrics records embedding generation telemetry. Instruments that fail
// to initialize are left nil and recording skips them, so a degraded
// meter never blocks embedding.
type Metrics struct {
	generationDuration metric.Float64Histogram
	batchSize          metric.Int64Histogram
	errorsTotal        metric.Int64Counter
}

// NewMetrics creates embedding metrics on the global meter provider.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	if h, err := meter.Float64Histogram(
		"negmine.embedding.generation_duration_seconds",
		metric.WithDescription("Time to generate a batch of embeddings"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err == nil {
		m.generationDuration = h
	}

	if h, err := meter.Int64Histogram(
		"negmine.embedding.batch_size",
		metric.WithDescription("Number of texts per embedding call"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500),
	); err == nil {
		m.batchSize = h
	}

	if c, err := meter.Int64Counter(
		"negmine.embedding.errors_total",
		metric.WithDescription("Embedding calls that returned an error"),
	); err == nil {
		m.errorsTotal = c
	}

	return m
}

// RecordGeneration records one embedding call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, batchSize int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.generationDuration != nil {
		m.generationDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if err != nil && m.errorsTotal != nil {
		m.errorsTotal.Add(ctx, 1, attrs)
	}
}
