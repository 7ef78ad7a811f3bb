package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avabff/internal/util"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Environment variables that override file values after parsing.
const (
	EnvLogSinkURL     = "LOG_SINK_URL"
	EnvLogSinkMode    = "LOG_SINK_MODE"
	EnvAppName        = "APP_NAME"
	EnvAppEnv         = "APP_ENV"
	EnvLogLevel       = "LOG_LEVEL"
	EnvListenAddress  = "LISTEN_ADDRESS"
	EnvOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvUserService    = "USER_SERVICE_URL"
	EnvOrderService   = "ORDER_SERVICE_URL"
	EnvPaymentService = "PAYMENT_SERVICE_URL"
	EnvResourceKind   = "RESOURCE_KIND"
)

// LookupEnvFunc looks up an environment variable.
type LookupEnvFunc func(key string) (string, bool)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvLookup replaces os.LookupEnv, mainly for tests.
func WithEnvLookup(fn LookupEnvFunc) LoaderOption {
	return func(l *Loader) {
		l.lookupEnv = fn
	}
}

// Loader reads configuration for one process role. Values are layered:
// defaults, then the YAML file, then environment overrides.
type Loader struct {
	role      Role
	lookupEnv LookupEnvFunc
}

// NewLoader creates a new configuration loader.
func NewLoader(role Role, opts ...LoaderOption) *Loader {
	l := &Loader{
		role:      role,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadConfig loads configuration for role from path. An empty path
// yields defaults plus environment overrides.
func LoadConfig(path string, role Role) (*Config, error) {
	return NewLoader(role).Load(path)
}

// Load loads configuration from a file path.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		return l.parseConfig(nil)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	f, err := os.Open(absPath) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, util.NewConfigErrorWithCause("", "failed to read config file "+path, err)
	}
	defer f.Close()

	return l.LoadFromReader(f)
}

// LoadFromReader parses YAML from r over the role defaults.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("", "failed to read config", err)
	}

	return l.parseConfig(data)
}

// parseConfig layers YAML data over the role defaults.
func (l *Loader) parseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	switch l.role {
	case RoleGateway:
		cfg.Downstream = DefaultDownstreamConfig()
	case RoleResource:
		cfg.Resource = &ResourceConfig{}
	}

	if len(data) > 0 {
		content := l.substituteEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			return nil, util.NewConfigErrorWithCause("", "failed to parse YAML", err)
		}
	}

	l.applyEnvOverrides(cfg)

	if cfg.Resource != nil {
		cfg.SetResourceKind(cfg.Resource.Kind)
	}

	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment variable values.
func (l *Loader) substituteEnvVars(content string) string {
	// Handle escaped dollar signs first
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		if value, exists := l.lookupEnv(submatches[1]); exists {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// applyEnvOverrides applies the well-known environment variables.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	l.override(EnvLogSinkURL, &cfg.LogSink.URL)
	l.override(EnvLogSinkMode, &cfg.LogSink.Mode)
	l.override(EnvAppName, &cfg.Service.Name)
	l.override(EnvAppEnv, &cfg.Service.Environment)
	l.override(EnvLogLevel, &cfg.Logging.Level)
	l.override(EnvListenAddress, &cfg.Server.Address)

	if l.override(EnvOTLPEndpoint, &cfg.Tracing.OTLPEndpoint) {
		cfg.Tracing.Enabled = true
	}

	if cfg.Downstream != nil {
		l.override(EnvUserService, &cfg.Downstream.Services.User.BaseURL)
		l.override(EnvOrderService, &cfg.Downstream.Services.Order.BaseURL)
		l.override(EnvPaymentService, &cfg.Downstream.Services.Payment.BaseURL)
	}

	if cfg.Resource != nil {
		l.override(EnvResourceKind, &cfg.Resource.Kind)
	}
}

// override sets *dst from key when the variable is set and non-empty.
func (l *Loader) override(key string, dst *string) bool {
	value, ok := l.lookupEnv(key)
	if !ok || value == "" {
		return false
	}
	*dst = value
	return true
}
