package testutil

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	id "rollcall/pkg/domain"
	"rollcall/pkg/requestcontext"
)

// StaffContext returns a context carrying a fresh staff ID, as the auth
// middleware would for an authenticated request.
func StaffContext(parent context.Context) (context.Context, id.StaffID) {
	staffID := id.StaffID(uuid.New())
	return requestcontext.WithStaffID(parent, staffID), staffID
}

// WithBearer sets an Authorization header carrying token.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(req *http.Request, userAgent string) *http.Request {
	req.Header.Set("User-Agent", userAgent)
	return req
}
