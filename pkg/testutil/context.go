package testutil

import (
	"context"
	"net/http"

	"catcher/internal/platform/middleware"
)

// WithUser adds an authenticated user to the request context, simulating what
// the auth middleware does after validating a bearer token.
func WithUser(req *http.Request, userID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyUserID, userID)
	return req.WithContext(ctx)
}

// WithUserEmail adds both the user ID and email to the request context.
func WithUserEmail(req *http.Request, userID, email string) *http.Request {
	ctx := req.Context()
	ctx = context.WithValue(ctx, middleware.ContextKeyUserID, userID)
	ctx = context.WithValue(ctx, middleware.ContextKeyEmail, email)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
