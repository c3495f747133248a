package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the request gate and response cache.
type Metrics struct {
	requestsInWindow prometheus.Gauge
	waiting          prometheus.Gauge
	utilization      prometheus.Gauge
	waitSeconds      prometheus.Histogram

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheSize   prometheus.Gauge
}

// NewMetrics registers the gate metrics with the default registry once per
// process and returns the shared instance.
//
// Metrics:
//   - docforge_gate_requests_in_window - grants inside the sliding window
//   - docforge_gate_waiting - callers blocked in Acquire
//   - docforge_gate_utilization_percent - window usage against the effective max
//   - docforge_gate_wait_seconds - time spent in Acquire
//   - docforge_response_cache_hits_total / _misses_total / _size
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			requestsInWindow: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "docforge_gate_requests_in_window",
				Help: "Provider requests granted within the current sliding window",
			}),
			waiting: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "docforge_gate_waiting",
				Help: "Callers currently waiting for a provider request slot",
			}),
			utilization: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "docforge_gate_utilization_percent",
				Help: "Sliding window utilization as a percentage of the effective maximum",
			}),
			waitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "docforge_gate_wait_seconds",
				Help:    "Time spent waiting for a provider request slot",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
			}),
			cacheHits: promauto.NewCounter(prometheus.CounterOpts{
				Name: "docforge_response_cache_hits_total",
				Help: "Provider responses served from the response cache",
			}),
			cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
				Name: "docforge_response_cache_misses_total",
				Help: "Provider requests not found in the response cache",
			}),
			cacheSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "docforge_response_cache_size",
				Help: "Entries currently held in the response cache",
			}),
		}
	})
	return globalMetrics
}

func (m *Metrics) report(inWindow, waiting int, utilization float64) {
	m.requestsInWindow.Set(float64(inWindow))
	m.waiting.Set(float64(waiting))
	m.utilization.Set(utilization)
}

func (m *Metrics) observeWait(d time.Duration) {
	m.waitSeconds.Observe(d.Seconds())
}

func (m *Metrics) cacheLookup(hit bool) {
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}
