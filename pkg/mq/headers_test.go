package mq

import (
	"context"
	"testing"

	"contentplanner/pkg/trace"
)

func TestTraceIDTravelsInHeaders(t *testing.T) {
	ctx := trace.WithContext(context.Background(), "trace-123")

	headers := publishHeaders(ctx)
	if got := headers["X-Trace-ID"]; got != "trace-123" {
		t.Fatalf("X-Trace-ID header = %v, want trace-123", got)
	}

	restored := deliveryContext(context.Background(), headers)
	if got := trace.FromContext(restored); got != "trace-123" {
		t.Errorf("trace id after delivery = %q, want trace-123", got)
	}
}

func TestHeadersWithoutTraceID(t *testing.T) {
	headers := publishHeaders(context.Background())
	if _, ok := headers["X-Trace-ID"]; ok {
		t.Errorf("unexpected X-Trace-ID header: %v", headers)
	}
	if got := trace.FromContext(deliveryContext(context.Background(), headers)); got != "" {
		t.Errorf("trace id = %q, want empty", got)
	}
}

func TestNonStringTraceHeaderIgnored(t *testing.T) {
	ctx := deliveryContext(context.Background(), map[string]any{"X-Trace-ID": 42})
	if got := trace.FromContext(ctx); got != "" {
		t.Errorf("trace id = %q, want empty", got)
	}
}
