// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
// Request-scoped time matters here: every check inside a single join request
// (cooldown expiry, recent-pass window, attempt timestamps) must agree on one
// "now" so a request cannot straddle a cooldown boundary mid-flight.
//
// Usage in services (read values):
//
//	riderID := requestcontext.RiderID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithRiderID(ctx, "rider-1")
package requestcontext

import (
	"context"
	"time"
)

type (
	riderIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithRiderID stores the authenticated rider ID in the context.
func WithRiderID(ctx context.Context, riderID string) context.Context {
	return context.WithValue(ctx, riderIDKey{}, riderID)
}

// RiderID returns the authenticated rider ID, or "" when unauthenticated.
func RiderID(ctx context.Context) string {
	id, _ := ctx.Value(riderIDKey{}).(string)
	return id
}

// WithRequestID stores the correlation ID for the current request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID, or "" when none was set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now retrieves the request-scoped time from context, falling back to the
// wall clock when no middleware captured one (background jobs, tests that
// don't care).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
