// Package prometheus instruments the client. All recorder methods are
// nil-safe: a client built without metrics pays one nil check per event.
package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the registry the package-level metrics live in.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer wraps DefaultRegistry with the service label.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "redix"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	// RequestsTotal counts completed requests by worker and outcome
	// (ok, failed, rejected).
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes wall time from dispatch to completion.
	RequestDuration *prometheus.HistogramVec

	// RejectedTotal counts requests refused before reaching a worker
	// (client not started, worker shutting down).
	RejectedTotal prometheus.Counter

	// QueueDepthGauge tracks each worker's inbound queue length.
	QueueDepthGauge *prometheus.GaugeVec

	// InFlightGauge tracks commands issued but not yet completed.
	InFlightGauge *prometheus.GaugeVec

	// ConnDialsTotal / ConnErrorsTotal count connection establishment
	// attempts per worker.
	ConnDialsTotal  *prometheus.CounterVec
	ConnErrorsTotal *prometheus.CounterVec
}

// GetMetrics returns the shared metrics instance on DefaultRegisterer.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics registers a fresh collector set with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		RequestsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "redix_requests_total",
				Help: "Total number of completed requests",
			},
			[]string{"worker", "outcome"},
		),
		RequestDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redix_request_duration_seconds",
				Help:    "Request duration from dispatch to completion",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"worker", "outcome"},
		),
		RejectedTotal: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "redix_rejected_total",
				Help: "Requests rejected before reaching a worker",
			},
		),
		QueueDepthGauge: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "redix_queue_depth",
				Help: "Inbound queue length per worker",
			},
			[]string{"worker"},
		),
		InFlightGauge: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "redix_inflight_commands",
				Help: "Commands issued and awaiting a reply per worker",
			},
			[]string{"worker"},
		),
		ConnDialsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "redix_conn_dials_total",
				Help: "Successful connection establishments per worker",
			},
			[]string{"worker"},
		),
		ConnErrorsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "redix_conn_errors_total",
				Help: "Failed connection attempts per worker",
			},
			[]string{"worker"},
		),
	}
}

// RequestDone records one completed request.
func (m *Metrics) RequestDone(worker, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(worker, outcome).Inc()
	m.RequestDuration.WithLabelValues(worker, outcome).Observe(seconds)
}

// Rejected records a request refused before reaching a worker.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.RejectedTotal.Inc()
}

// QueueDepth records a worker's current inbound queue length.
func (m *Metrics) QueueDepth(worker string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepthGauge.WithLabelValues(worker).Set(float64(depth))
}

// InFlight records a worker's current in-flight command count.
func (m *Metrics) InFlight(worker string, n int) {
	if m == nil {
		return
	}
	m.InFlightGauge.WithLabelValues(worker).Set(float64(n))
}

// ConnDialed records a successful connection establishment.
func (m *Metrics) ConnDialed(worker string) {
	if m == nil {
		return
	}
	m.ConnDialsTotal.WithLabelValues(worker).Inc()
}

// ConnError records a failed connection attempt.
func (m *Metrics) ConnError(worker string) {
	if m == nil {
		return
	}
	m.ConnErrorsTotal.WithLabelValues(worker).Inc()
}
