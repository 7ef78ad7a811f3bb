package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avabff/internal/observability"
)

// Recovery returns a middleware that recovers from panics. The panic value
// and stack are logged; the caller only sees a generic 500. m may be nil.
func Recovery(logger observability.Logger, m *Metrics) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				ctx := c.Request.Context()

				logger.WithContext(ctx).Error("panic recovered",
					observability.Any("error", err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("stack", string(debug.Stack())),
				)

				trace.SpanFromContext(ctx).RecordError(fmt.Errorf("panic: %v", err))
				if m != nil {
					m.panicsRecovered.Inc()
				}

				c.Abort()
				c.Data(http.StatusInternalServerError, "application/json; charset=utf-8",
					[]byte(ErrInternalServerError))
			}
		}()

		c.Next()
	}
}
