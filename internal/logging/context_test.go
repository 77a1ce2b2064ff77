package logging

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestContextFields_NoSpan(t *testing.T) {
	fields := ContextFields(context.Background())
	if len(fields) != 0 {
		t.Errorf("ContextFields() = %d fields, want 0 without a span", len(fields))
	}
}

func TestContextFields_WithSpan(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	if len(fields) != 3 {
		t.Fatalf("ContextFields() = %d fields, want 3 (trace_id, span_id, sampled)", len(fields))
	}

	byKey := map[string]bool{}
	for _, f := range fields {
		byKey[f.Key] = true
	}
	for _, key := range []string{"trace_id", "span_id", "trace_sampled"} {
		if !byKey[key] {
			t.Errorf("ContextFields() missing %q", key)
		}
	}
}

func TestContextFields_UnsampledSpan(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0xff},
		SpanID:  trace.SpanID{0xff},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("ContextFields() = %d fields, want 2 for unsampled span", len(fields))
	}
}
