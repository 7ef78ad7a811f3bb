// Package health provides liveness and readiness endpoints.
//
// Readiness aggregates named checks. A degraded check is reported but
// keeps the service ready; only an unhealthy check or a draining process
// answers 503.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of a check or of the whole readiness probe.
type Status string

// Unhealthy fails readiness with 503. Degraded still serves, e.g. when a
// backend is down and composed requests would answer 502.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultCheckTimeout bounds one readiness evaluation.
const DefaultCheckTimeout = 3 * time.Second

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Service   string    `json:"service,omitempty"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the body of /ready, keyed by check name.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Check is the result of one named check.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// CheckFunc performs one readiness check.
type CheckFunc func(ctx context.Context) Check

// Checker serves the probes of one process. Checks are registered at
// startup and run concurrently on every readiness request.
type Checker struct {
	service   string
	version   string
	startTime time.Time
	timeout   time.Duration
	metrics   *Metrics

	mu       sync.RWMutex
	checks   map[string]CheckFunc
	draining atomic.Bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithMetrics records check results in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// WithCheckTimeout bounds one readiness evaluation.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewChecker creates a new health checker.
func NewChecker(service, version string, opts ...Option) *Checker {
	c := &Checker{
		service:   service,
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
		checks:    make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterCheck registers a readiness check.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetDraining marks the process as shutting down. A draining process
// reports not ready so load balancers stop sending traffic.
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// IsDraining reports whether the process is shutting down.
func (c *Checker) IsDraining() bool {
	return c.draining.Load()
}

// Health returns the health status.
func (c *Checker) Health() HealthResponse {
	return HealthResponse{
		Status:    StatusHealthy,
		Service:   c.service,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs every registered check concurrently under one timeout and
// combines the results. Unhealthy outranks degraded.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	funcs := make([]CheckFunc, len(names))
	for i, name := range names {
		funcs[i] = c.checks[name]
	}
	c.mu.RUnlock()

	results := make([]Check, len(names))
	var g errgroup.Group
	for i, fn := range funcs {
		g.Go(func() error {
			results[i] = fn(ctx)
			return nil
		})
	}
	_ = g.Wait()

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check, len(names)+1),
		Timestamp: time.Now(),
	}
	if c.IsDraining() {
		response.Checks["shutdown"] = Check{Status: StatusUnhealthy, Message: "draining"}
		response.Status = StatusUnhealthy
	}

	for i, name := range names {
		check := results[i]
		response.Checks[name] = check
		if c.metrics != nil {
			c.metrics.record(name, check.Status)
		}
		if check.Status == StatusUnhealthy ||
			(check.Status == StatusDegraded && response.Status == StatusHealthy) {
			response.Status = check.Status
		}
	}

	return response
}

// RegisterRoutes mounts /health, /ready and /live.
func (c *Checker) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", c.HealthHandler())
	r.GET("/ready", c.ReadinessHandler())
	r.GET("/live", c.LivenessHandler())
}

// HealthHandler returns a handler for the health endpoint.
func (c *Checker) HealthHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Health())
	}
}

// ReadinessHandler returns a handler for readiness probes.
func (c *Checker) ReadinessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response := c.Readiness(ctx.Request.Context())

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		ctx.JSON(statusCode, response)
	}
}

// LivenessHandler returns a handler for liveness probes.
func (c *Checker) LivenessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
