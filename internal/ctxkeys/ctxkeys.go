// Package ctxkeys centralizes the context.Context value keys shared across
// gatewayflow's HTTP middleware and handlers, so every package that needs to
// read or write a request-scoped value uses the same typed key instead of
// redeclaring its own unexported key type.
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID 设置请求 ID，由 RequestID 中间件在请求入口处调用
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext 获取请求 ID
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
