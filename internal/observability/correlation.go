package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// CorrelationHeader carries the correlation id on every hop.
	CorrelationHeader = "X-Correlation-ID"

	// maxCorrelationIDLength bounds caller-supplied ids.
	maxCorrelationIDLength = 128
)

// CorrelationContext identifies one logical end-to-end request. It is
// created once at the gateway edge and passed by value, so holders cannot
// change it.
type CorrelationContext struct {
	id    string
	route string
	start time.Time
}

// NewCorrelationContext returns a CorrelationContext for an inbound
// request. A valid caller-supplied id is reused as is; otherwise a new id
// is generated.
func NewCorrelationContext(incomingID, route string, start time.Time) CorrelationContext {
	id := incomingID
	if !ValidCorrelationID(id) {
		id = NewCorrelationID()
	}
	return CorrelationContext{
		id:    id,
		route: route,
		start: start,
	}
}

// NewCorrelationID generates a fresh correlation id.
func NewCorrelationID() string {
	return uuid.NewString()
}

// ValidCorrelationID reports whether id can be propagated unchanged.
// Ids must be non-empty, bounded, and printable ASCII without spaces so
// they are safe in headers and log lines.
func ValidCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// ID returns the correlation id.
func (c CorrelationContext) ID() string { return c.id }

// Route returns the originating route.
func (c CorrelationContext) Route() string { return c.route }

// Start returns the time the inbound request was received.
func (c CorrelationContext) Start() time.Time { return c.start }

// Elapsed returns the time spent on the request so far.
func (c CorrelationContext) Elapsed() time.Duration {
	return time.Since(c.start)
}

// IsZero reports whether the context was never initialized.
func (c CorrelationContext) IsZero() bool {
	return c.id == ""
}

// Fields returns the log fields every record of the request carries.
func (c CorrelationContext) Fields() []Field {
	if c.IsZero() {
		return nil
	}
	fields := []Field{String(FieldCorrelationID, c.id)}
	if c.route != "" {
		fields = append(fields, String(FieldRoute, c.route))
	}
	return fields
}

// Inject writes the correlation id into outbound request headers.
func (c CorrelationContext) Inject(h http.Header) {
	if c.IsZero() {
		return
	}
	h.Set(CorrelationHeader, c.id)
}

type correlationKey struct{}

// ContextWithCorrelation attaches the correlation context to ctx.
func ContextWithCorrelation(ctx context.Context, c CorrelationContext) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

// CorrelationFromContext returns the correlation context attached to ctx.
func CorrelationFromContext(ctx context.Context) (CorrelationContext, bool) {
	c, ok := ctx.Value(correlationKey{}).(CorrelationContext)
	return c, ok && !c.IsZero()
}
