package testutil

import (
	"net/http"
	"time"

	"zonegate/pkg/requestcontext"
)

// WithRiderID adds an authenticated rider ID to the request context,
// simulating what the auth middleware does for authenticated requests.
func WithRiderID(req *http.Request, riderID string) *http.Request {
	return req.WithContext(requestcontext.WithRiderID(req.Context(), riderID))
}

// WithRequestTime pins the request-scoped clock, simulating the
// request-time middleware.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID adds a correlation ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
