package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationBuckets cover fast in-memory lookups up to slow downstream
// calls that hit their timeout.
var durationBuckets = []float64{
	.001, .005, .01, .025, .05,
	.1, .25, .5, 1, 2.5, 5, 10,
}

// Metrics holds the Prometheus metrics of one service. Every service owns
// its registry; the /metrics endpoint serves it on demand.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestsInFlight   *prometheus.GaugeVec
	downstreamTotal    *prometheus.CounterVec
	downstreamDuration *prometheus.HistogramVec
	buildInfo          *prometheus.GaugeVec
	startTime          prometheus.Gauge
	registry           *prometheus.Registry
	composition        bool
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*Metrics)

// WithoutCompositionMetrics leaves the inbound request and downstream call
// collectors out of the registry, for services that never compose
// requests. Recording on them stays safe but is never exported.
func WithoutCompositionMetrics() MetricsOption {
	return func(m *Metrics) { m.composition = false }
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string, opts ...MetricsOption) *Metrics {
	if namespace == "" {
		namespace = "bff"
	}

	m := &Metrics{
		registry:    prometheus.NewRegistry(),
		composition: true,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of inbound requests by route and outcome",
		},
		[]string{"route", "outcome", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Inbound request duration in seconds",
			Buckets:   durationBuckets,
		},
		[]string{"route", "outcome"},
	)

	m.requestsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Number of inbound requests being handled",
		},
		[]string{"route"},
	)

	m.downstreamTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downstream",
			Name:      "requests_total",
			Help:      "Total number of downstream calls by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	m.downstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "downstream",
			Name:      "request_duration_seconds",
			Help:      "Downstream call duration in seconds",
			Buckets:   durationBuckets,
		},
		[]string{"service", "outcome"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the process in unix seconds",
		},
	)

	m.registry.MustRegister(
		m.buildInfo,
		m.startTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if m.composition {
		m.registry.MustRegister(
			m.requestsTotal,
			m.requestDuration,
			m.requestsInFlight,
			m.downstreamTotal,
			m.downstreamDuration,
		)
	}

	m.startTime.SetToCurrentTime()

	return m
}

// RecordRequest records a completed inbound request. The route must be
// the route template, not the raw path, to keep cardinality bounded.
func (m *Metrics) RecordRequest(route, outcome string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, outcome, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, outcome).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge for route and returns the
// function that decrements it.
func (m *Metrics) TrackInFlight(route string) func() {
	g := m.requestsInFlight.WithLabelValues(route)
	g.Inc()
	return g.Dec
}

// RecordDownstream records one downstream call.
func (m *Metrics) RecordDownstream(service, outcome string, duration time.Duration) {
	m.downstreamTotal.WithLabelValues(service, outcome).Inc()
	m.downstreamDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit string) {
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

