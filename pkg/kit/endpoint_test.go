package kit

import (
	"context"
	"testing"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != "" || GetRequestID(ctx) != "" || GetTraceID(ctx) != "" {
		t.Fatal("empty context should yield empty values")
	}

	ctx = WithTransport(ctx, "stdio")
	ctx = WithRequestID(ctx, "req1")
	ctx = WithTraceID(ctx, "tr1")

	if got := GetTransport(ctx); got != "stdio" {
		t.Errorf("transport = %q", got)
	}
	if got := GetRequestID(ctx); got != "req1" {
		t.Errorf("request id = %q", got)
	}
	if got := GetTraceID(ctx); got != "tr1" {
		t.Errorf("trace id = %q", got)
	}
}
