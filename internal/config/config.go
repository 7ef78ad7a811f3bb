package config

import (
	"fmt"
	"time"
)

// Role selects which sections of the configuration a process needs.
type Role string

// Process roles.
const (
	RoleGateway  Role = "gateway"
	RoleResource Role = "resource"
)

// Resource service kinds.
const (
	KindUser    = "user"
	KindOrder   = "order"
	KindPayment = "payment"
)

// Log sink modes.
const (
	// SinkModeRequired refuses to start without a log sink URL.
	SinkModeRequired = "required"

	// SinkModeBestEffort starts console-only when no URL is configured.
	SinkModeBestEffort = "best-effort"
)

// Default values.
const (
	DefaultListenAddress     = ":8080"
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultDownstreamTimeout = 5 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
	DefaultMaxConcurrency    = 8
	DefaultMetricsPath       = "/metrics"
	DefaultSinkBatchSize     = 100
	DefaultSinkBatchWait     = time.Second
	DefaultSinkBufferSize    = 10000
	DefaultSinkTimeout       = 5 * time.Second
	DefaultSamplingRate      = 1.0
)

// Config is the configuration of one process, either the gateway or a
// resource service.
type Config struct {
	Service    ServiceConfig     `yaml:"service" json:"service"`
	Server     ServerConfig      `yaml:"server" json:"server"`
	Logging    LoggingConfig     `yaml:"logging" json:"logging"`
	LogSink    LogSinkConfig     `yaml:"logSink" json:"logSink"`
	Tracing    TracingConfig     `yaml:"tracing" json:"tracing"`
	Metrics    MetricsConfig     `yaml:"metrics" json:"metrics"`
	Downstream *DownstreamConfig `yaml:"downstream,omitempty" json:"downstream,omitempty"`
	Resource   *ResourceConfig   `yaml:"resource,omitempty" json:"resource,omitempty"`
}

// ServiceConfig identifies the process. Name and environment become the
// app and env labels of every log record.
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	Environment string `yaml:"environment" json:"environment"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// LoggingConfig configures console logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// LogSinkConfig configures remote log shipping.
type LogSinkConfig struct {
	URL        string   `yaml:"url" json:"url"`
	Mode       string   `yaml:"mode" json:"mode"`
	BatchSize  int      `yaml:"batchSize,omitempty" json:"batchSize,omitempty"`
	BatchWait  Duration `yaml:"batchWait,omitempty" json:"batchWait,omitempty"`
	BufferSize int      `yaml:"bufferSize,omitempty" json:"bufferSize,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Compress   bool     `yaml:"compress,omitempty" json:"compress,omitempty"`
}

// Required reports whether the process must refuse to start without a
// sink URL.
func (c LogSinkConfig) Required() bool {
	return c.Mode != SinkModeBestEffort
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	Insecure     bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Path string `yaml:"path" json:"path"`
}

// DownstreamConfig configures the gateway's calls to resource services.
type DownstreamConfig struct {
	// Timeout bounds a single downstream call unless the service overrides it.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// RequestTimeout bounds a whole composed request.
	RequestTimeout Duration `yaml:"requestTimeout" json:"requestTimeout"`

	// MaxConcurrency bounds concurrent calls of one fan-out stage.
	MaxConcurrency int `yaml:"maxConcurrency" json:"maxConcurrency"`

	Services ServicesConfig `yaml:"services" json:"services"`
}

// ServicesConfig lists the resource services the gateway calls.
type ServicesConfig struct {
	User    ServiceEndpoint `yaml:"user" json:"user"`
	Order   ServiceEndpoint `yaml:"order" json:"order"`
	Payment ServiceEndpoint `yaml:"payment" json:"payment"`
}

// ServiceEndpoint is the address of one resource service.
type ServiceEndpoint struct {
	BaseURL string   `yaml:"baseURL" json:"baseURL"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// TimeoutOr returns the endpoint timeout, or fallback when unset.
func (e ServiceEndpoint) TimeoutOr(fallback time.Duration) time.Duration {
	if e.Timeout > 0 {
		return e.Timeout.Duration()
	}
	return fallback
}

// ResourceConfig configures a resource service.
type ResourceConfig struct {
	Kind    string          `yaml:"kind" json:"kind"`
	Latency []LatencyConfig `yaml:"latency,omitempty" json:"latency,omitempty"`
}

// LatencyConfig delays responses for one record id.
type LatencyConfig struct {
	ID    int      `yaml:"id" json:"id"`
	Delay Duration `yaml:"delay" json:"delay"`
}

// DefaultConfig returns a configuration with default values and no role
// sections.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Environment: "development",
		},
		Server: ServerConfig{
			Address:         DefaultListenAddress,
			ReadTimeout:     Duration(DefaultReadTimeout),
			WriteTimeout:    Duration(DefaultWriteTimeout),
			IdleTimeout:     Duration(DefaultIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		LogSink: LogSinkConfig{
			Mode:       SinkModeRequired,
			BatchSize:  DefaultSinkBatchSize,
			BatchWait:  Duration(DefaultSinkBatchWait),
			BufferSize: DefaultSinkBufferSize,
			Timeout:    Duration(DefaultSinkTimeout),
		},
		Tracing: TracingConfig{
			SamplingRate: DefaultSamplingRate,
			Insecure:     true,
		},
		Metrics: MetricsConfig{
			Path: DefaultMetricsPath,
		},
	}
}

// DefaultDownstreamConfig returns the gateway's downstream defaults with
// the local development service addresses.
func DefaultDownstreamConfig() *DownstreamConfig {
	return &DownstreamConfig{
		Timeout:        Duration(DefaultDownstreamTimeout),
		RequestTimeout: Duration(DefaultRequestTimeout),
		MaxConcurrency: DefaultMaxConcurrency,
		Services: ServicesConfig{
			User:    ServiceEndpoint{BaseURL: "http://localhost:8081"},
			Order:   ServiceEndpoint{BaseURL: "http://localhost:8082"},
			Payment: ServiceEndpoint{BaseURL: "http://localhost:8083"},
		},
	}
}

// DefaultResourceConfig returns defaults for a resource service of kind.
// The user service delays id 2 by 200ms.
func DefaultResourceConfig(kind string) *ResourceConfig {
	rc := &ResourceConfig{Kind: kind}
	if kind == KindUser {
		rc.Latency = []LatencyConfig{{ID: 2, Delay: Duration(200 * time.Millisecond)}}
	}
	return rc
}

// SetResourceKind sets the resource kind, e.g. from a command-line flag,
// and applies the kind's default latency when none is configured.
func (c *Config) SetResourceKind(kind string) {
	if c.Resource == nil {
		c.Resource = &ResourceConfig{}
	}
	c.Resource.Kind = kind
	if c.Resource.Latency == nil {
		c.Resource.Latency = DefaultResourceConfig(kind).Latency
	}
}

// String returns a one-line summary safe to log.
func (c *Config) String() string {
	return fmt.Sprintf("service=%s env=%s address=%s logSink.mode=%s tracing=%t",
		c.Service.Name, c.Service.Environment, c.Server.Address, c.LogSink.Mode, c.Tracing.Enabled)
}
