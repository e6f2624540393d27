// Package metrics exposes photovault's Prometheus counters.
//
// Every Metrics value owns its own registry instead of using the global
// default one. Tests can then build as many as they like without
// "duplicate metrics collector registration" panics, and /metrics shows only
// what we registered plus the Go runtime collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photovault"

// Outcome labels for coordinator operations.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // input, auth or not-found errors
	OutcomeFailed   = "failed"   // store errors, both stores still consistent
	OutcomeCorrupt  = "inconsistent"
)

type Metrics struct {
	registry *prometheus.Registry

	operations          *prometheus.CounterVec
	consistencyFailures *prometheus.CounterVec
	orphansReclaimed    prometheus.Counter
	requestDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "operations_total",
				Help:      "Photo coordinator operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		consistencyFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consistency_failures_total",
				Help:      "Times the blob store and metadata store were left disagreeing.",
			},
			[]string{"kind"},
		),
		orphansReclaimed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphans_reclaimed_total",
				Help:      "Unreferenced blobs deleted by the reconciler.",
			},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route pattern.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) Operation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ConsistencyFailure(kind string) {
	m.consistencyFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) OrphanReclaimed() {
	m.orphansReclaimed.Inc()
}

// ObserveRequest records one HTTP request. route should be the chi route
// pattern ("/photos/{id}"), never the raw path, or every photo ID would
// become its own time series.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
