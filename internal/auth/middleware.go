package auth

import (
	"context"
	"net/http"

	"github.com/arbiterhq/arbiter/internal/models"
	pkghttp "github.com/arbiterhq/arbiter/pkg/http"
)

type contextKey string

const claimsContextKey contextKey = "session_claims"

// SessionMiddleware validates the session cookie and stores the claims in
// the request context. Requests without a valid session are rejected.
func SessionMiddleware(tm *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetCookie(r, SessionCookieName)
			if token == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			claims, err := tm.ValidateSessionToken(token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the session claims stored by SessionMiddleware,
// or nil when the request carried no valid session
func ClaimsFromContext(ctx context.Context) *models.SessionClaims {
	claims, _ := ctx.Value(claimsContextKey).(*models.SessionClaims)
	return claims
}
