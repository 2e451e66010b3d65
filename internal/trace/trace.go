// Package trace carries W3C trace context across the saga's hops. The
// pipeline never starts spans of its own; it extracts the incoming
// traceparent/tracestate pair and re-injects it unmodified, so every queue
// hop and HTTP call stays attributable to the originating request.
package trace

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
)

// FromRequest returns the raw traceparent and tracestate headers of r.
func FromRequest(r *http.Request) (traceParent, traceState string) {
	return r.Header.Get("traceparent"), r.Header.Get("tracestate")
}

// ContextWith reconstructs the remote span context described by the raw W3C
// strings. An empty traceParent leaves ctx untouched.
func ContextWith(ctx context.Context, traceParent, traceState string) context.Context {
	if traceParent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceParent}
	if traceState != "" {
		carrier["tracestate"] = traceState
	}
	return propagator.Extract(ctx, carrier)
}

// Inject writes the span context carried by ctx into h. Because no span is
// started in between, the headers round-trip exactly as they arrived.
func Inject(ctx context.Context, h http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(h))
}

// TraceID returns the hex trace id carried by ctx, or "" if none, for log
// correlation.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
