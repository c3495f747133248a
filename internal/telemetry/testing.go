package telemetry

import (
	"context"
	"slices"
	"testing"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Recorder is Telemetry backed by in-memory span and metric readers.
type Recorder struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewRecorder returns enabled telemetry that keeps everything in memory.
func NewRecorder() *Recorder {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &Recorder{
		Telemetry: &Telemetry{
			config:         cfg,
			logger:         logging.NewNop(),
			tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Install makes the recorder the global provider. Package-level tracers and
// instruments bind to the first global provider, so call it at most once
// per test binary.
func (r *Recorder) Install() {
	otel.SetTracerProvider(r.tracerProvider)
	otel.SetMeterProvider(r.meterProvider)
}

// Spans returns ended spans.
func (r *Recorder) Spans() []sdktrace.ReadOnlySpan {
	return r.spans.Ended()
}

// Span returns the first ended span called name whose attributes include
// every attr, or nil.
func (r *Recorder) Span(name string, attrs ...attribute.KeyValue) sdktrace.ReadOnlySpan {
	for _, s := range r.Spans() {
		if s.Name() == name && hasAll(s.Attributes(), attrs) {
			return s
		}
	}
	return nil
}

// Children returns the names of the ended spans whose parent is span.
func (r *Recorder) Children(span sdktrace.ReadOnlySpan) []string {
	var names []string
	for _, s := range r.Spans() {
		if s.Parent().SpanID() == span.SpanContext().SpanID() {
			names = append(names, s.Name())
		}
	}
	return names
}

// RequireSpan fails tb when no matching span was recorded.
func (r *Recorder) RequireSpan(tb testing.TB, name string, attrs ...attribute.KeyValue) sdktrace.ReadOnlySpan {
	tb.Helper()
	s := r.Span(name, attrs...)
	if s == nil {
		names := make([]string, 0)
		for _, s := range r.Spans() {
			names = append(names, s.Name())
		}
		tb.Fatalf("span %q with %v not recorded; have %v", name, attrs, names)
	}
	return s
}

// Int64Sum collects metrics and returns the total of the int64 counter
// called name over data points carrying every attr.
func (r *Recorder) Int64Sum(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes.ToSlice(), attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAll(have, want []attribute.KeyValue) bool {
	for _, w := range want {
		if !slices.ContainsFunc(have, func(h attribute.KeyValue) bool { return h == w }) {
			return false
		}
	}
	return true
}
