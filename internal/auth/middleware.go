// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"docgate/internal/apperr"
	"docgate/internal/model"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	claimsKey contextKey = "admin_claims"
)

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

func bearer(r *http.Request) string {
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

// APIKeyMiddleware authenticates the request's bearer API key and stores the
// tenant in the request context.
func APIKeyMiddleware(a *Authenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := a.Authenticate(r.Context(), bearer(r))
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware accepts only JWTs carrying the admin role.
func AdminMiddleware(issuer *TokenIssuer, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				onError(w, r, apperr.Unauthenticated("missing or invalid Authorization header"))
				return
			}

			claims, err := issuer.ValidateToken(bearer(r))
			if err != nil {
				onError(w, r, apperr.Unauthenticated("unauthorized"))
				return
			}
			if claims.Role != RoleAdmin {
				onError(w, r, apperr.Forbidden("admin role required"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant stored by APIKeyMiddleware.
func TenantFromContext(ctx context.Context) (*model.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*model.Tenant)
	return t, ok && t != nil
}

// ClaimsFromContext returns the admin claims stored by AdminMiddleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}
