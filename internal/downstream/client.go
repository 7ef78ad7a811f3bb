// Package downstream implements the typed HTTP client the gateway uses to
// reach the resource services.
//
// Every call is bounded by its own timeout, carries the correlation id and
// W3C trace context of the inbound request, and ends in exactly one log
// record and one latency sample. Failures are always returned as *Error.
package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avabff/internal/model"
	"github.com/vyrodovalexey/avabff/internal/observability"
)

const (
	// DefaultTimeout bounds a call when no timeout is configured.
	DefaultTimeout = 5 * time.Second

	// maxBodySize caps how much of a response body is decoded.
	maxBodySize = 1 << 20
)

var (
	errTrailingData = errors.New("unexpected data after JSON value")
	errNullList     = errors.New("expected a JSON array, got null")
)

// Client calls one resource service.
type Client struct {
	service string
	baseURL *url.URL
	timeout time.Duration

	httpClient *http.Client
	logger     observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, usually ConnectionPool.Client().
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithMetrics sets the metrics that record call latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// WithTracer sets the tracer used for client spans and propagation.
func WithTracer(t *observability.Tracer) Option {
	return func(cl *Client) {
		cl.tracer = t
	}
}

// NewClient creates a client for service rooted at baseURL.
func NewClient(service, baseURL string, opts ...Option) (*Client, error) {
	if service == "" {
		return nil, errors.New("downstream service name is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("downstream %s: invalid base URL: %w", service, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("downstream %s: base URL must be http or https, got %q", service, baseURL)
	}

	c := &Client{
		service:    service,
		baseURL:    u,
		timeout:    DefaultTimeout,
		httpClient: http.DefaultClient,
		logger:     observability.NopLogger(),
		tracer:     observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Service returns the target service name.
func (c *Client) Service() string {
	return c.service
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Fetch issues GET path and decodes the JSON response into out.
//
// The correlation id of cc is sent as X-Correlation-ID. Cancellation of ctx
// aborts the call. The returned error, if any, is a *Error.
func (c *Client) Fetch(ctx context.Context, cc observability.CorrelationContext, path string, out any) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.StartSpan(ctx, "GET "+c.service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", c.service),
			attribute.String("url.path", path),
			attribute.String("correlation.id", cc.ID()),
		),
	)
	defer span.End()

	status, err := c.do(ctx, cc, path, out)
	elapsed := time.Since(start)
	outcome := Outcome(err)

	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	if c.metrics != nil {
		c.metrics.RecordDownstream(c.service, outcome, elapsed)
	}

	logger := c.logger.WithContext(observability.ContextWithCorrelation(ctx, cc))
	fields := []observability.Field{
		observability.String("service", c.service),
		observability.String("path", path),
		observability.String("outcome", outcome),
		observability.Int("status", status),
		observability.Duration("latency", elapsed),
	}
	if err != nil {
		logger.Warn("downstream call failed", append(fields, observability.Error(err))...)
	} else {
		logger.Info("downstream call", fields...)
	}

	return err
}

// do performs the request and returns the response status, if one was
// received.
func (c *Client) do(ctx context.Context, cc observability.CorrelationContext, path string, out any) (int, error) {
	target := c.resolve(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return 0, c.fail(KindFatal, path, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	cc.Inject(req.Header)
	c.tracer.InjectTraceContext(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, c.fail(c.transportKind(ctx), path, 0, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, c.fail(KindNotFound, path, resp.StatusCode, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp.StatusCode, c.fail(KindUpstreamStatus, path, resp.StatusCode, nil)
	}

	if err := decodeBody(io.LimitReader(resp.Body, maxBodySize), out); err != nil {
		// A deadline that fires mid-body is a timeout, not a bad payload.
		if ctx.Err() != nil {
			return resp.StatusCode, c.fail(c.transportKind(ctx), path, resp.StatusCode, err)
		}
		return resp.StatusCode, c.fail(KindDecode, path, resp.StatusCode, err)
	}
	if err := validatePayload(out); err != nil {
		return resp.StatusCode, c.fail(KindDecode, path, resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

// decodeBody decodes exactly one JSON value from r into out.
func decodeBody(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

// validatePayload checks a decoded record, or every element of a decoded
// list, against the record invariants. A JSON null list is rejected too.
func validatePayload(out any) error {
	if rec, ok := out.(model.Keyed); ok {
		return rec.Validate()
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return nil
	}
	list := rv.Elem()
	if list.IsNil() {
		return errNullList
	}
	for i := 0; i < list.Len(); i++ {
		rec, ok := list.Index(i).Addr().Interface().(model.Keyed)
		if !ok {
			return nil
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (c *Client) resolve(path string) string {
	u := *c.baseURL
	rel, err := url.Parse(path)
	if err != nil {
		u.Path = strings.TrimRight(u.Path, "/") + path
		return u.String()
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return u.String()
}

func (c *Client) transportKind(ctx context.Context) Kind {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return KindCanceled
	default:
		return KindUnreachable
	}
}

func (c *Client) fail(kind Kind, path string, status int, cause error) *Error {
	return &Error{
		Kind:       kind,
		Service:    c.service,
		Path:       path,
		StatusCode: status,
		Cause:      cause,
	}
}

// Get is a typed wrapper around Client.Fetch. Records, and the elements of
// record lists, are validated before they are returned.
func Get[T any](ctx context.Context, c *Client, cc observability.CorrelationContext, path string) (T, error) {
	var out T
	if err := c.Fetch(ctx, cc, path, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
