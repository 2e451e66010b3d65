package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	testTraceParent = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	testTraceState  = "congo=t61rcWkgMzE"
)

func TestRoundTripUnmodified(t *testing.T) {
	ctx := ContextWith(context.Background(), testTraceParent, testTraceState)

	h := make(http.Header)
	Inject(ctx, h)

	if got := h.Get("traceparent"); got != testTraceParent {
		t.Errorf("traceparent = %q, want %q", got, testTraceParent)
	}
	if got := h.Get("tracestate"); got != testTraceState {
		t.Errorf("tracestate = %q, want %q", got, testTraceState)
	}
}

func TestEmptyTraceParentInjectsNothing(t *testing.T) {
	ctx := ContextWith(context.Background(), "", "")

	h := make(http.Header)
	Inject(ctx, h)

	if got := h.Get("traceparent"); got != "" {
		t.Errorf("traceparent = %q, want empty", got)
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/orders", nil)
	r.Header.Set("traceparent", testTraceParent)
	r.Header.Set("tracestate", testTraceState)

	parent, state := FromRequest(r)
	if parent != testTraceParent {
		t.Errorf("traceParent = %q, want %q", parent, testTraceParent)
	}
	if state != testTraceState {
		t.Errorf("traceState = %q, want %q", state, testTraceState)
	}
}

func TestTraceID(t *testing.T) {
	ctx := ContextWith(context.Background(), testTraceParent, "")
	if got := TraceID(ctx); got != "0af7651916cd43dd8448eb211c80319c" {
		t.Errorf("TraceID() = %q", got)
	}
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID() on empty context = %q, want empty", got)
	}
}
