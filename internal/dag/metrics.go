package dag

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/docforge/internal/dag"

var (
	tracer trace.Tracer

	stepCounter  metric.Int64Counter
	stepDuration metric.Float64Histogram
)

func init() {
	tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	var err error
	stepCounter, err = meter.Int64Counter(
		"docforge.executor.steps",
		metric.WithDescription("Executed steps by outcome"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create step counter: %v", err))
	}

	stepDuration, err = meter.Float64Histogram(
		"docforge.executor.step.duration",
		metric.WithDescription("Duration of a single step"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create step duration histogram: %v", err))
	}
}
