package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avabff/internal/util"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      ValidationError
		expected string
	}{
		{
			name:     "with path",
			err:      ValidationError{Path: "logSink.url", Message: "url is required"},
			expected: "logSink.url: url is required",
		},
		{
			name:     "without path",
			err:      ValidationError{Message: "configuration is nil"},
			expected: "configuration is nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.Equal(t, "a: b", ValidationErrors{{Path: "a", Message: "b"}}.Error())

	multi := ValidationErrors{{Path: "a", Message: "b"}, {Path: "c", Message: "d"}}
	assert.Contains(t, multi.Error(), "2 validation errors")
	assert.Contains(t, multi.Error(), "2. c: d")
	assert.True(t, errors.Is(multi, util.ErrConfigInvalid))
}

func validGatewayConfig() *Config {
	cfg := DefaultConfig()
	cfg.Service.Name = "bff"
	cfg.LogSink.URL = "http://loki:3100/loki/api/v1/push"
	cfg.Downstream = DefaultDownstreamConfig()
	return cfg
}

func validResourceConfig() *Config {
	cfg := DefaultConfig()
	cfg.Service.Name = "user-service"
	cfg.LogSink.URL = "http://loki:3100/loki/api/v1/push"
	cfg.SetResourceKind(KindUser)
	return cfg
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		role    Role
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid gateway", role: RoleGateway, mutate: func(*Config) {}},
		{name: "valid resource", role: RoleResource, mutate: func(*Config) {}},
		{
			name:    "missing service name",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Service.Name = " " },
			wantErr: "service.name",
		},
		{
			name:    "missing environment",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Service.Environment = "" },
			wantErr: "service.environment",
		},
		{
			name:    "sink url required by default",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.LogSink.URL = "" },
			wantErr: "logSink.url: url is required",
		},
		{
			name: "sink url optional in best-effort mode",
			role: RoleGateway,
			mutate: func(c *Config) {
				c.LogSink.URL = ""
				c.LogSink.Mode = SinkModeBestEffort
			},
		},
		{
			name:    "sink url must be http",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.LogSink.URL = "udp://loki:3100" },
			wantErr: "logSink.url",
		},
		{
			name:    "unknown sink mode",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.LogSink.Mode = "sometimes" },
			wantErr: "logSink.mode",
		},
		{
			name:    "invalid log level",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "invalid log format",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "sampling rate out of range",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: "tracing.samplingRate",
		},
		{
			name:    "tracing without endpoint",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Tracing.Enabled = true },
			wantErr: "tracing.otlpEndpoint",
		},
		{
			name:    "metrics path",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: "metrics.path",
		},
		{
			name:    "negative server timeout",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Server.ReadTimeout = Duration(-time.Second) },
			wantErr: "server.readTimeout",
		},
		{
			name:    "gateway without downstream",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Downstream = nil },
			wantErr: "downstream: downstream is required",
		},
		{
			name:    "missing downstream base url",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Downstream.Services.Payment.BaseURL = "" },
			wantErr: "downstream.services.payment.baseURL",
		},
		{
			name:    "zero downstream timeout",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Downstream.Timeout = 0 },
			wantErr: "downstream.timeout",
		},
		{
			name:    "zero max concurrency",
			role:    RoleGateway,
			mutate:  func(c *Config) { c.Downstream.MaxConcurrency = 0 },
			wantErr: "downstream.maxConcurrency",
		},
		{
			name:    "resource without kind",
			role:    RoleResource,
			mutate:  func(c *Config) { c.Resource.Kind = "" },
			wantErr: "resource.kind: kind is required",
		},
		{
			name:    "unknown resource kind",
			role:    RoleResource,
			mutate:  func(c *Config) { c.Resource.Kind = "invoice" },
			wantErr: "resource.kind",
		},
		{
			name:    "latency id",
			role:    RoleResource,
			mutate:  func(c *Config) { c.Resource.Latency = []LatencyConfig{{ID: 0}} },
			wantErr: "resource.latency[0].id",
		},
		{
			name:    "unknown role",
			role:    Role("sidecar"),
			mutate:  func(*Config) {},
			wantErr: "unknown role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var cfg *Config
			if tt.role == RoleResource {
				cfg = validResourceConfig()
			} else {
				cfg = validGatewayConfig()
			}
			tt.mutate(cfg)

			err := ValidateConfig(cfg, tt.role)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, util.ErrConfigInvalid)
		})
	}
}

func TestValidator_NilConfig(t *testing.T) {
	t.Parallel()

	err := NewValidator(RoleGateway).Validate(nil)
	assert.ErrorContains(t, err, "configuration is nil")
}

func TestValidator_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Downstream = &DownstreamConfig{}

	err := ValidateConfig(cfg, RoleGateway)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.GreaterOrEqual(t, len(verrs), 6)
}
