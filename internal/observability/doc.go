// Package observability provides logging, metrics, and tracing for the
// gateway and the resource services.
//
// Every record a service writes goes to the console and, when configured,
// to a remote log sink (see the sink subpackage). Records carry the app and
// env labels plus the correlation id, route, trace id and span id found in
// the request context:
//
//	cc := observability.NewCorrelationContext(r.Header.Get(observability.CorrelationHeader), "/user/:id", time.Now())
//	ctx := observability.ContextWithCorrelation(r.Context(), cc)
//	logger.WithContext(ctx).Info("request received")
//
// # Pipeline
//
// NewPipeline wires the components of one service:
//
//	p, err := observability.NewPipeline(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p.Start()
//	defer p.Stop(ctx)
//
// # Metrics
//
// Each service owns a Prometheus registry served by Metrics.Handler.
//
// # Tracing
//
// Spans are always created so log records can carry span ids; they are
// exported over OTLP gRPC only when tracing is enabled. W3C trace context
// is propagated on outbound calls.
package observability
