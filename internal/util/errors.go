package util

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the downstream error taxonomy.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTimeout        = errors.New("timeout")
	ErrUnreachable    = errors.New("backend unreachable")
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	ErrDecode         = errors.New("malformed payload")
	ErrCanceled       = errors.New("request canceled")
	ErrFatal          = errors.New("internal failure")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// ConfigError is a configuration file that could not be read or parsed.
// Field is empty when the failure is not tied to one setting.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	msg := "config error: " + e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is matches ErrConfigInvalid, any *ConfigError, and the cause.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigErrorWithCause wraps cause as a ConfigError.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}
