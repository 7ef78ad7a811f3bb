package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/avabff/internal/observability/sink"
)

// Config holds configuration for the observability pipeline of one
// service.
type Config struct {
	// Service information
	ServiceName    string
	ServiceVersion string
	ServiceCommit  string
	Environment    string

	Log    LogConfig
	Tracer TracerConfig

	// Sink configures remote log shipping. Nil disables it.
	Sink *sink.Config

	// SinkRequired makes a missing or broken sink a startup error instead
	// of a warning.
	SinkRequired bool

	MetricsNamespace string

	// CompositionMetrics registers the inbound request and downstream call
	// collectors. Only the gateway records them.
	CompositionMetrics bool
}

// Pipeline owns the logger, metrics, tracer and log sink of a service.
type Pipeline struct {
	config  Config
	logger  Logger
	metrics *Metrics
	tracer  *Tracer
	sink    *sink.Sink
}

// NewPipeline builds every observability component. Nothing is started
// until Start is called.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.SinkRequired && (cfg.Sink == nil || cfg.Sink.URL == "") {
		return nil, errors.New("log sink url is required")
	}

	labels := map[string]string{
		FieldApp: cfg.ServiceName,
		FieldEnv: cfg.Environment,
	}

	var metricsOpts []MetricsOption
	if !cfg.CompositionMetrics {
		metricsOpts = append(metricsOpts, WithoutCompositionMetrics())
	}

	p := &Pipeline{
		config:  cfg,
		metrics: NewMetrics(cfg.MetricsNamespace, metricsOpts...),
	}
	p.metrics.SetBuildInfo(cfg.ServiceVersion, cfg.ServiceCommit)

	diag := diagnosticLogger(labels)

	var sinkErr error
	if cfg.Sink != nil && cfg.Sink.URL != "" {
		sinkCfg := *cfg.Sink
		sinkCfg.Labels = labels
		sinkCfg.MetadataKeys = []string{FieldCorrelationID, FieldRoute, FieldTraceID, FieldSpanID}

		s, err := sink.New(sinkCfg,
			sink.WithRegisterer(p.metrics.Registry()),
			sink.WithDiagnosticLogger(diag),
		)
		switch {
		case err == nil:
			p.sink = s
		case cfg.SinkRequired:
			return nil, fmt.Errorf("failed to create log sink: %w", err)
		default:
			sinkErr = err
		}
	}

	logCfg := cfg.Log
	logCfg.Labels = labels

	var extra []CoreBuilder
	if p.sink != nil {
		extra = append(extra, p.sink.Core)
	}

	logger, err := NewLogger(logCfg, extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	p.logger = logger

	if sinkErr != nil {
		logger.Warn("log sink disabled", Error(sinkErr))
	}

	tracerCfg := cfg.Tracer
	tracerCfg.ServiceName = cfg.ServiceName
	tracerCfg.ServiceVersion = cfg.ServiceVersion
	tracerCfg.Environment = cfg.Environment
	tracer, err := NewTracer(tracerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	p.tracer = tracer

	return p, nil
}

// diagnosticLogger writes sink failures to stderr only, so reports about
// the sink never loop back into it.
func diagnosticLogger(labels map[string]string) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(EncoderConfig()),
		zapcore.Lock(os.Stderr),
		zapcore.WarnLevel,
	)
	return zap.New(core, zap.Fields(labelFields(labels)...)).Named("log_sink")
}

// Start starts background components.
func (p *Pipeline) Start() {
	if p.sink != nil {
		p.sink.Start()
	}
	p.logger.Info("observability initialized",
		String("version", p.config.ServiceVersion),
		Bool("log_sink", p.sink != nil),
		Bool("tracing_export", p.config.Tracer.Enabled),
	)
}

// Stop flushes and shuts down all components.
func (p *Pipeline) Stop(ctx context.Context) error {
	var errs []error

	if p.tracer != nil {
		if err := p.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop tracer: %w", err))
		}
	}

	// Sync before stopping the sink so buffered console output lands first.
	if p.logger != nil {
		_ = p.logger.Sync()
	}

	if p.sink != nil {
		if err := p.sink.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush log sink: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Logger returns the service logger.
func (p *Pipeline) Logger() Logger { return p.logger }

// Metrics returns the service metrics.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Tracer returns the service tracer.
func (p *Pipeline) Tracer() *Tracer { return p.tracer }

// Sink returns the log sink, or nil when remote shipping is disabled.
func (p *Pipeline) Sink() *sink.Sink { return p.sink }
