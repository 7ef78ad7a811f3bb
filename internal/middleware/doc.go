// Package middleware provides the gin middleware shared by the backend
// resource services.
//
// # Middleware Components
//
//   - Correlation: adopts the propagated correlation id and W3C trace
//     context and starts a server span
//   - Logging: "handling request" / "finished handling request" records
//     tagged with the correlation id
//   - Recovery: panic recovery with a generic JSON 500
//   - Metrics: per-service request counters and latency histograms
//
// # Usage
//
// Order matters: Recovery first so panics anywhere are caught, then
// Correlation so later middleware and handlers see the request context.
//
//	engine.Use(
//	    middleware.Recovery(logger, m),
//	    middleware.Correlation(tracer),
//	    middleware.Logging(logger),
//	    m.Handler(),
//	)
package middleware
