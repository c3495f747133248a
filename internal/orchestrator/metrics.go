package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/docforge/internal/orchestrator"

var (
	tracer trace.Tracer

	projectCounter  metric.Int64Counter
	projectDuration metric.Float64Histogram
	projectsRunning metric.Int64UpDownCounter
)

func init() {
	tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	var err error
	projectCounter, err = meter.Int64Counter(
		"docforge.projects",
		metric.WithDescription("Finished projects by final status"),
		metric.WithUnit("{project}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create project counter: %v", err))
	}

	projectDuration, err = meter.Float64Histogram(
		"docforge.project.duration",
		metric.WithDescription("Wall time of a project from Phase 1 to its final state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(10, 30, 60, 120, 300, 600, 1200, 1800, 3600),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create project duration histogram: %v", err))
	}

	projectsRunning, err = meter.Int64UpDownCounter(
		"docforge.projects.running",
		metric.WithDescription("Projects currently being generated"),
		metric.WithUnit("{project}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create running projects counter: %v", err))
	}
}

var (
	promOnce     sync.Once
	promProjects *prometheus.CounterVec
)

// promMetrics registers the Prometheus project counter once per process.
//
// Metrics:
//   - docforge_projects_total{status} - finished projects by final status
func promMetrics() *prometheus.CounterVec {
	promOnce.Do(func() {
		promProjects = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docforge_projects_total",
			Help: "Finished projects by final status",
		}, []string{"status"})
	})
	return promProjects
}

func recordProject(ctx context.Context, final State, d time.Duration) {
	status := string(final.Status())
	attrs := metric.WithAttributes(attribute.String("status", status))
	projectCounter.Add(ctx, 1, attrs)
	projectDuration.Record(ctx, d.Seconds(), attrs)
	promMetrics().WithLabelValues(status).Inc()
}
