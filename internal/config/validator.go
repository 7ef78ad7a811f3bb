package config

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/avabff/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is lets errors.Is(err, util.ErrConfigInvalid) match.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration for one role.
type Validator struct {
	role   Role
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator(role Role) *Validator {
	return &Validator{
		role:   role,
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates cfg for role.
func ValidateConfig(cfg *Config, role Role) error {
	return NewValidator(role).Validate(cfg)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateService(&cfg.Service)
	v.validateServer(&cfg.Server)
	v.validateLogging(&cfg.Logging)
	v.validateLogSink(&cfg.LogSink)
	v.validateTracing(&cfg.Tracing)

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		v.addError("metrics.path", "path must start with '/'")
	}

	switch v.role {
	case RoleGateway:
		v.validateDownstream(cfg.Downstream)
	case RoleResource:
		v.validateResource(cfg.Resource)
	default:
		v.addError("", fmt.Sprintf("unknown role %q", v.role))
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateService(s *ServiceConfig) {
	if err := util.ValidateNonEmpty(s.Name, "name"); err != nil {
		v.addError("service.name", err.Error())
	}
	if err := util.ValidateNonEmpty(s.Environment, "environment"); err != nil {
		v.addError("service.environment", err.Error())
	}
}

func (v *Validator) validateServer(s *ServerConfig) {
	if s.Address == "" {
		v.addError("server.address", "address is required")
	}
	v.validateDuration("server.readTimeout", s.ReadTimeout)
	v.validateDuration("server.writeTimeout", s.WriteTimeout)
	v.validateDuration("server.idleTimeout", s.IdleTimeout)
	v.validateDuration("server.shutdownTimeout", s.ShutdownTimeout)
}

func (v *Validator) validateLogging(l *LoggingConfig) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level %q", l.Level))
	}

	switch l.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format %q", l.Format))
	}

	switch l.Output {
	case "", "stdout", "stderr":
	default:
		v.addError("logging.output", fmt.Sprintf("invalid output %q", l.Output))
	}
}

func (v *Validator) validateLogSink(s *LogSinkConfig) {
	switch s.Mode {
	case SinkModeRequired, SinkModeBestEffort:
	default:
		v.addError("logSink.mode", fmt.Sprintf("mode must be %q or %q", SinkModeRequired, SinkModeBestEffort))
	}

	switch {
	case s.URL == "" && s.Required():
		v.addError("logSink.url", "url is required")
	case s.URL != "":
		if err := util.ValidateURL(s.URL); err != nil {
			v.addError("logSink.url", err.Error())
		}
	}

	if s.BatchSize < 0 {
		v.addError("logSink.batchSize", "must not be negative")
	}
	if s.BufferSize < 0 {
		v.addError("logSink.bufferSize", "must not be negative")
	}
}

func (v *Validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1")
	}
	if t.Enabled && t.OTLPEndpoint == "" {
		v.addError("tracing.otlpEndpoint", "endpoint is required when tracing is enabled")
	}
}

func (v *Validator) validateDownstream(d *DownstreamConfig) {
	if d == nil {
		v.addError("downstream", "downstream is required")
		return
	}

	v.validatePositive("downstream.timeout", d.Timeout)
	v.validatePositive("downstream.requestTimeout", d.RequestTimeout)
	if d.MaxConcurrency < 1 {
		v.addError("downstream.maxConcurrency", "must be at least 1")
	}

	endpoints := []struct {
		path string
		ep   ServiceEndpoint
	}{
		{"downstream.services.user", d.Services.User},
		{"downstream.services.order", d.Services.Order},
		{"downstream.services.payment", d.Services.Payment},
	}
	for _, e := range endpoints {
		if err := util.ValidateURL(e.ep.BaseURL); err != nil {
			v.addError(e.path+".baseURL", err.Error())
		}
		v.validateDuration(e.path+".timeout", e.ep.Timeout)
	}
}

func (v *Validator) validateResource(r *ResourceConfig) {
	if r == nil {
		v.addError("resource", "resource is required")
		return
	}

	switch r.Kind {
	case KindUser, KindOrder, KindPayment:
	case "":
		v.addError("resource.kind", "kind is required")
	default:
		v.addError("resource.kind",
			fmt.Sprintf("kind must be one of %s, %s, %s", KindUser, KindOrder, KindPayment))
	}

	for i, l := range r.Latency {
		path := fmt.Sprintf("resource.latency[%d]", i)
		if l.ID <= 0 {
			v.addError(path+".id", "id must be positive")
		}
		v.validateDuration(path+".delay", l.Delay)
	}
}

// validateDuration rejects negative durations; zero means default.
func (v *Validator) validateDuration(path string, d Duration) {
	if d < 0 {
		v.addError(path, "must not be negative")
	}
}

func (v *Validator) validatePositive(path string, d Duration) {
	if err := util.ValidatePositiveDuration(d.Duration()); err != nil {
		v.addError(path, err.Error())
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: message,
	})
}
