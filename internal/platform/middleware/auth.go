package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	"rollcall/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	StaffID        id.StaffID
	OrganisationID *id.OrganisationID
	JTI            string
}

type contextKeyOrganisationID struct{}

// OrganisationID returns the organisation the caller's token is bound to.
func OrganisationID(ctx context.Context) (id.OrganisationID, bool) {
	orgID, ok := ctx.Value(contextKeyOrganisationID{}).(id.OrganisationID)
	return orgID, ok
}

// RequireAuth rejects requests without a valid bearer token and stores the
// staff ID for the service layer.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithStaffID(ctx, claims.StaffID)
			if claims.OrganisationID != nil {
				ctx = context.WithValue(ctx, contextKeyOrganisationID{}, *claims.OrganisationID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
