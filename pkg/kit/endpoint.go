// Package kit holds the transport-agnostic endpoint shape shared by the MCP
// dispatcher and its middlewares, plus the request-scoped context values they
// read (transport, request id, trace id).
package kit

import "context"

// Endpoint handles one decoded request and returns a value to be rendered.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	traceIDKey
)

func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

func GetTransport(ctx context.Context) string {
	v, _ := ctx.Value(transportKey).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID returns the trace id set by WithTraceID, or "".
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
