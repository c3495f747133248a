package quality

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/docforge/internal/quality"

var (
	tracer trace.Tracer

	scoreHistogram     metric.Int64Histogram
	improvementCounter metric.Int64Counter
	warningCounter     metric.Int64Counter
)

func init() {
	tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	var err error
	scoreHistogram, err = meter.Int64Histogram(
		"docforge.quality.score",
		metric.WithDescription("Score of accepted foundational documents"),
		metric.WithUnit("{score}"),
		metric.WithExplicitBucketBoundaries(40, 50, 60, 70, 80, 90, 100),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create quality score histogram: %v", err))
	}

	improvementCounter, err = meter.Int64Counter(
		"docforge.quality.improvements",
		metric.WithDescription("Documents that went through the improvement pass"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create quality improvement counter: %v", err))
	}

	warningCounter, err = meter.Int64Counter(
		"docforge.quality.warnings",
		metric.WithDescription("Non-fatal scorer or improver failures"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create quality warning counter: %v", err))
	}
}
