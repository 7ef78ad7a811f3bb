package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avabff/internal/observability"
)

// Correlation attaches a CorrelationContext and the remote trace context
// to the request and wraps the handler chain in a server span.
//
// A valid X-Correlation-ID header is adopted unchanged, so every hop of a
// gateway request logs the same id. Requests that arrive without one get a
// fresh id. The id is echoed on the response.
func Correlation(tracer *observability.Tracer) gin.HandlerFunc {
	if tracer == nil {
		tracer = observability.NopTracer()
	}

	return func(c *gin.Context) {
		route := routeOf(c.FullPath())
		cc := observability.NewCorrelationContext(
			c.GetHeader(observability.CorrelationHeader), route, time.Now())

		ctx := tracer.ExtractTraceContext(c.Request.Context(), c.Request.Header)
		ctx = observability.ContextWithCorrelation(ctx, cc)

		ctx, span := tracer.StartSpan(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("correlation.id", cc.ID()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Header(observability.CorrelationHeader, cc.ID())

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}
