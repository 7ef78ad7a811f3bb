// Package aggregator implements the gateway's request orchestration: it
// owns the correlation context of each inbound request, issues the
// downstream calls a route needs, and merges their outcomes into exactly
// one caller-visible response.
//
// A request moves through Received, DownstreamInFlight, Merging, and
// Responded. Merging maps every failure kind to one status and a generic
// body; internal error text is logged, never returned.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avabff/internal/downstream"
	"github.com/vyrodovalexey/avabff/internal/observability"
	"github.com/vyrodovalexey/avabff/internal/util"
)

// Defaults used when options leave limits unset.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxConcurrency = 8
)

// State is the lifecycle stage of one inbound request.
type State int

// Request states.
const (
	StateReceived State = iota
	StateDownstreamInFlight
	StateMerging
	StateResponded
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDownstreamInFlight:
		return "downstream_in_flight"
	case StateMerging:
		return "merging"
	case StateResponded:
		return "responded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request describes an inbound request as the orchestrator sees it.
type Request struct {
	// Route is the route template, e.g. "/user/:id".
	Route string

	// CorrelationID is the caller-supplied id, possibly empty.
	CorrelationID string

	// Header carries the inbound W3C trace context.
	Header http.Header
}

// Response is the merged outcome of a request.
type Response struct {
	Status        int
	Body          any
	Outcome       string
	CorrelationID string
}

// ErrorBody is the only error shape callers ever see.
type ErrorBody struct {
	Error string `json:"error"`
}

// Operation performs the downstream work of one route. It must pass cc to
// every downstream call it makes.
type Operation func(ctx context.Context, cc observability.CorrelationContext) (any, error)

// Orchestrator runs gateway requests against the resource services.
type Orchestrator struct {
	clients        *downstream.Clients
	logger         observability.Logger
	metrics        *observability.Metrics
	tracer         *observability.Tracer
	requestTimeout time.Duration
	maxConcurrency int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer for server spans.
func WithTracer(t *observability.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithRequestTimeout bounds a whole request, including every stage of a
// fan-out.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithMaxConcurrency bounds the concurrent calls of one fan-out stage.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// New creates an orchestrator over clients.
func New(clients *downstream.Clients, opts ...Option) (*Orchestrator, error) {
	if clients == nil || clients.User == nil || clients.Order == nil || clients.Payment == nil {
		return nil, errors.New("aggregator: user, order and payment clients are required")
	}

	o := &Orchestrator{
		clients:        clients,
		logger:         observability.NopLogger(),
		tracer:         observability.NopTracer(),
		requestTimeout: DefaultRequestTimeout,
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Handle runs op for one inbound request and returns the merged response.
// It never returns internal error text to the caller. A correlation
// context already attached to ctx is reused; otherwise one is built from
// req.
func (o *Orchestrator) Handle(ctx context.Context, req Request, op Operation) Response {
	// Received
	cc, ok := observability.CorrelationFromContext(ctx)
	if !ok {
		cc = observability.NewCorrelationContext(req.CorrelationID, req.Route, time.Now())
	}
	if o.metrics != nil {
		defer o.metrics.TrackInFlight(req.Route)()
	}

	if req.Header != nil {
		ctx = o.tracer.ExtractTraceContext(ctx, req.Header)
	}
	ctx, span := o.tracer.StartSpan(ctx, "GET "+req.Route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", req.Route),
			attribute.String("correlation.id", cc.ID()),
		),
	)
	defer span.End()

	logger := o.logger.WithContext(observability.ContextWithCorrelation(ctx, cc))
	logger.Debug("request state", observability.String("state", StateReceived.String()))

	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	// DownstreamInFlight
	logger.Debug("request state", observability.String("state", StateDownstreamInFlight.String()))
	body, err := op(ctx, cc)

	// Merging
	logger.Debug("request state", observability.String("state", StateMerging.String()))
	resp := merge(body, err)
	resp.CorrelationID = cc.ID()

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.Status),
		attribute.String("outcome", resp.Outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Outcome)
	}

	// Responded
	elapsed := cc.Elapsed()
	if o.metrics != nil {
		o.metrics.RecordRequest(req.Route, resp.Outcome, resp.Status, elapsed)
	}
	o.logResponded(logger, resp, elapsed, err)

	return resp
}

func (o *Orchestrator) logResponded(logger observability.Logger, resp Response, elapsed time.Duration, err error) {
	fields := []observability.Field{
		observability.String("state", StateResponded.String()),
		observability.String("outcome", resp.Outcome),
		observability.Int("status", resp.Status),
		observability.Duration("latency", elapsed),
	}
	if err != nil {
		fields = append(fields, observability.Error(err))
	}

	switch {
	case resp.Status >= http.StatusInternalServerError:
		logger.Error("request completed", fields...)
	case resp.Status >= http.StatusBadRequest:
		logger.Warn("request completed", fields...)
	default:
		logger.Info("request completed", fields...)
	}
}

// StatusClientClosedRequest is returned when the caller went away before
// the response was ready.
const StatusClientClosedRequest = 499

// Generic caller-visible messages.
const (
	msgNotFound       = "not found"
	msgInvalidRequest = "invalid request"
	msgGatewayTimeout = "gateway timeout"
	msgBadGateway     = "bad gateway"
	msgClientClosed   = "client closed request"
	msgInternalError  = "internal server error"
)

// outcomeInvalidInput labels requests rejected before any downstream call.
const outcomeInvalidInput = "invalid_input"

func merge(body any, err error) Response {
	if err == nil {
		return Response{Status: http.StatusOK, Body: body, Outcome: downstream.OutcomeSuccess}
	}

	status, msg := StatusFor(err)
	outcome := downstream.Outcome(err)
	if errors.Is(err, util.ErrInvalidInput) {
		outcome = outcomeInvalidInput
	}
	return Response{Status: status, Body: ErrorBody{Error: msg}, Outcome: outcome}
}

// StatusFor maps an operation error to the caller-visible status and
// message.
func StatusFor(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, util.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidRequest
	}

	switch downstream.KindOf(err) {
	case downstream.KindNotFound:
		return http.StatusNotFound, msgNotFound
	case downstream.KindTimeout:
		return http.StatusGatewayTimeout, msgGatewayTimeout
	case downstream.KindUnreachable, downstream.KindUpstreamStatus, downstream.KindDecode:
		return http.StatusBadGateway, msgBadGateway
	case downstream.KindCanceled:
		return StatusClientClosedRequest, msgClientClosed
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}
