package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the Prometheus collectors of one server.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	connections prometheus.Gauge
	documents   *prometheus.CounterVec
}

// NewMetrics registers the server collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flindoc_requests_total",
				Help: "Requests handled, by operation and status",
			},
			[]string{"op", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flindoc_request_duration_seconds",
				Help:    "Request handling latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"op"},
		),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flindoc_active_connections",
			Help: "Open client connections",
		}),
		documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flindoc_documents_written_total",
				Help: "Documents inserted, modified or deleted",
			},
			[]string{"op"},
		),
	}
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(op, status string, seconds float64) {
	m.requests.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) written(op string, n int64) {
	if n > 0 {
		m.documents.WithLabelValues(op).Add(float64(n))
	}
}
