// Package app wires the process-level components shared by the gateway and
// the resource services: observability pipeline, HTTP server, health
// endpoints, metrics exposition, and config hot-reload of the log level.
package app

import (
	"fmt"

	"github.com/vyrodovalexey/avabff/internal/config"
	"github.com/vyrodovalexey/avabff/internal/health"
	"github.com/vyrodovalexey/avabff/internal/observability"
	"github.com/vyrodovalexey/avabff/internal/observability/sink"
	"github.com/vyrodovalexey/avabff/internal/server"
)

// checkLogSink is the readiness check name of the log sink.
const checkLogSink = "log_sink"

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// App holds the components of one process.
type App struct {
	config     *config.Config
	role       config.Role
	configPath string
	info       BuildInfo

	pipeline *observability.Pipeline
	server   *server.Server
	health   *health.Checker
	watcher  *config.Watcher

	overrides []func(*config.Config)
	closers   []func()
}

// Option configures an App.
type Option func(*App)

// WithConfigPath enables log-level hot reload from path.
func WithConfigPath(path string) Option {
	return func(a *App) {
		a.configPath = path
	}
}

// WithConfigOverride reapplies fn to every reloaded configuration, e.g.
// to keep command-line flags authoritative.
func WithConfigOverride(fn func(*config.Config)) Option {
	return func(a *App) {
		a.overrides = append(a.overrides, fn)
	}
}

// New builds the observability pipeline, server and health checker from
// a validated configuration. Nothing is started until Run.
func New(cfg *config.Config, role config.Role, info BuildInfo, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	a := &App{config: cfg, role: role, info: info}
	for _, opt := range opts {
		opt(a)
	}

	pipeline, err := observability.NewPipeline(ObservabilityConfig(cfg, role, info))
	if err != nil {
		return nil, err
	}
	a.pipeline = pipeline

	healthMetrics, err := health.NewMetrics(pipeline.Metrics().Registry())
	if err != nil {
		return nil, fmt.Errorf("failed to register health metrics: %w", err)
	}
	checkOpts := []health.Option{health.WithMetrics(healthMetrics)}
	if cfg.Downstream != nil {
		// Readiness probes every backend; give it as long as one call.
		checkOpts = append(checkOpts, health.WithCheckTimeout(cfg.Downstream.Timeout.Duration()))
	}
	a.health = health.NewChecker(cfg.Service.Name, info.Version, checkOpts...)
	a.health.RegisterCheck(checkLogSink, health.SinkCheck(pipeline.Sink()))

	a.server = server.New(ServerConfig(cfg.Server), pipeline.Logger())
	a.health.RegisterRoutes(a.server.Engine())
	a.server.MountMetrics(cfg.Metrics.Path, pipeline.Metrics().Handler())

	return a, nil
}

// OnShutdown registers fn to run after the server has drained and before
// telemetry is flushed. Hooks run in registration order.
func (a *App) OnShutdown(fn func()) {
	a.closers = append(a.closers, fn)
}

// Config returns the process configuration.
func (a *App) Config() *config.Config { return a.config }

// Logger returns the process logger.
func (a *App) Logger() observability.Logger { return a.pipeline.Logger() }

// Metrics returns the process metrics.
func (a *App) Metrics() *observability.Metrics { return a.pipeline.Metrics() }

// Tracer returns the process tracer.
func (a *App) Tracer() *observability.Tracer { return a.pipeline.Tracer() }

// Health returns the health checker.
func (a *App) Health() *health.Checker { return a.health }

// Server returns the HTTP server.
func (a *App) Server() *server.Server { return a.server }

// metricsNamespaces prefixes the pipeline metrics of each role.
var metricsNamespaces = map[config.Role]string{
	config.RoleGateway:  "bff",
	config.RoleResource: "resource",
}

// ObservabilityConfig maps the process configuration onto the pipeline
// configuration. Only the gateway exports request and downstream metrics.
func ObservabilityConfig(cfg *config.Config, role config.Role, info BuildInfo) observability.Config {
	oc := observability.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: info.Version,
		ServiceCommit:  info.GitCommit,
		Environment:    cfg.Service.Environment,
		Log: observability.LogConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		},
		Tracer: observability.TracerConfig{
			Enabled:      cfg.Tracing.Enabled,
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			SamplingRate: cfg.Tracing.SamplingRate,
			Insecure:     cfg.Tracing.Insecure,
		},
		SinkRequired:       cfg.LogSink.Required(),
		MetricsNamespace:   metricsNamespaces[role],
		CompositionMetrics: role == config.RoleGateway,
	}

	if cfg.LogSink.URL != "" {
		oc.Sink = &sink.Config{
			URL:        cfg.LogSink.URL,
			BatchSize:  cfg.LogSink.BatchSize,
			BatchWait:  cfg.LogSink.BatchWait.Duration(),
			BufferSize: cfg.LogSink.BufferSize,
			Timeout:    cfg.LogSink.Timeout.Duration(),
			Compress:   cfg.LogSink.Compress,
		}
	}
	return oc
}

// ServerConfig maps the listener configuration onto the server.
func ServerConfig(sc config.ServerConfig) server.Config {
	return server.Config{
		Address:      sc.Address,
		ReadTimeout:  sc.ReadTimeout.Duration(),
		WriteTimeout: sc.WriteTimeout.Duration(),
		IdleTimeout:  sc.IdleTimeout.Duration(),
	}
}
