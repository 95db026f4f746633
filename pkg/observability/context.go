package observability

import (
	"context"
)

// Context keys for request-scoped observability data
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	principalKey contextKey = "principal"
	routeKey     contextKey = "route"
)

// WithRequestID adds the request identifier to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID gets the request identifier from the context
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipal gets the principal from the context. Returns "anonymous"
// when no principal was set, matching the cache key convention.
func GetPrincipal(ctx context.Context) string {
	if v, ok := ctx.Value(principalKey).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

// WithRoute adds the matched route pattern to the context
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey, route)
}

// GetRoute gets the matched route pattern from the context
func GetRoute(ctx context.Context) string {
	if v, ok := ctx.Value(routeKey).(string); ok {
		return v
	}
	return ""
}
