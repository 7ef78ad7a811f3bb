package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// resourceBuckets favor the millisecond range of in-memory lookups.
var resourceBuckets = []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1}

// Metrics holds the request metrics of one resource service.
type Metrics struct {
	service string

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	panicsRecovered prometheus.Counter
}

// NewMetrics creates request metrics for service and registers them with
// reg.
func NewMetrics(service string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		service: service,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resource",
				Name:      "requests_total",
				Help:      "Total number of requests served by a resource service",
			},
			[]string{"service", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "resource",
				Name:      "request_duration_seconds",
				Help:      "Resource service request duration in seconds",
				Buckets:   resourceBuckets,
			},
			[]string{"service", "route"},
		),
		panicsRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "resource",
				Name:      "panics_recovered_total",
				Help:      "Total number of recovered handler panics",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration, m.panicsRecovered} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the middleware that records every request. The route
// label is the matched route template, never the raw path.
func (m *Metrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := routeOf(c.FullPath())
		m.requestsTotal.WithLabelValues(m.service, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(m.service, route).Observe(time.Since(start).Seconds())
	}
}
