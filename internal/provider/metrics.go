package provider

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/docforge/internal/provider"

var (
	tracer trace.Tracer

	callCounter   metric.Int64Counter
	callDuration  metric.Float64Histogram
	retryCounter  metric.Int64Counter
	cacheHitCount metric.Int64Counter
)

func init() {
	tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	var err error
	callCounter, err = meter.Int64Counter(
		"docforge.provider.calls",
		metric.WithDescription("Provider calls by backend and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create provider call counter: %v", err))
	}

	callDuration, err = meter.Float64Histogram(
		"docforge.provider.call.duration",
		metric.WithDescription("Duration of a single provider call attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create provider call duration: %v", err))
	}

	retryCounter, err = meter.Int64Counter(
		"docforge.provider.retries",
		metric.WithDescription("Provider call retries by error kind"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create provider retry counter: %v", err))
	}

	cacheHitCount, err = meter.Int64Counter(
		"docforge.provider.cache_hits",
		metric.WithDescription("Provider calls answered from the response cache"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create provider cache counter: %v", err))
	}
}
