package downstream

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avabff/internal/util"
)

// Kind classifies the outcome of a failed downstream call.
type Kind int

// Failure kinds.
const (
	KindNotFound Kind = iota + 1
	KindTimeout
	KindUnreachable
	KindUpstreamStatus
	KindDecode
	KindCanceled
	KindFatal
)

// OutcomeSuccess labels successful calls in logs and metrics.
const OutcomeSuccess = "success"

var kindNames = map[Kind]string{
	KindNotFound:       "not_found",
	KindTimeout:        "timeout",
	KindUnreachable:    "unreachable",
	KindUpstreamStatus: "upstream_status",
	KindDecode:         "decode",
	KindCanceled:       "canceled",
	KindFatal:          "fatal",
}

var kindSentinels = map[Kind]error{
	KindNotFound:       util.ErrNotFound,
	KindTimeout:        util.ErrTimeout,
	KindUnreachable:    util.ErrUnreachable,
	KindUpstreamStatus: util.ErrUpstreamStatus,
	KindDecode:         util.ErrDecode,
	KindCanceled:       util.ErrCanceled,
	KindFatal:          util.ErrFatal,
}

// String returns the outcome label of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type returned by Client. It never carries a
// response body, so it is safe to log but must still not reach callers.
type Error struct {
	Kind       Kind
	Service    string
	Path       string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("downstream %s GET %s: %s", e.Service, e.Path, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the util sentinel of the error's kind, so
// errors.Is(err, util.ErrTimeout) works on downstream errors.
func (e *Error) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && target == sentinel {
		return true
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of a downstream error, or KindFatal for any
// other non-nil error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for kind := KindNotFound; kind <= KindFatal; kind++ {
		if errors.Is(err, kindSentinels[kind]) {
			return kind
		}
	}
	return KindFatal
}

// Outcome returns the metric and log label for err.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return KindOf(err).String()
}
