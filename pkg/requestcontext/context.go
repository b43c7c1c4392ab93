// Package requestcontext carries per-request values that services and stores read without
// importing net/http: the request id, client metadata and the pinned request time.
//
// Admission results (tenant, principal, quota) are not stored here; they travel in the
// immutable admission RequestContext.
package requestcontext

import (
	"context"
	"time"
)

// key is unexported so no other package can collide with or overwrite these values.
type key int

const (
	requestIDKey key = iota
	clientIPKey
	userAgentKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// RequestID is empty outside a request.
func RequestID(ctx context.Context) string {
	id, _ := value[string](ctx, requestIDKey)
	return id
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ClientIP is the address resolved by the client metadata middleware.
func ClientIP(ctx context.Context) string {
	ip, _ := value[string](ctx, clientIPKey)
	return ip
}

func UserAgent(ctx context.Context) string {
	ua, _ := value[string](ctx, userAgentKey)
	return ua
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	return context.WithValue(context.WithValue(ctx, clientIPKey, clientIP), userAgentKey, userAgent)
}

// Now returns the pinned request time, or the wall clock when none is pinned (CLI, workers).
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, requestTimeKey); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time so every admission stage observes the same instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
