package transport

import (
	"context"
	"net/http"
	"strings"

	"storefront/pkg/infrastructure/auth"
)

type claimsKey struct{}

func authMiddleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeMessage(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}
			claims, err := authenticator.Verify(parts[1])
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !claimsFrom(r).IsAdmin() {
			writeMessage(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// claimsFrom must only be called behind authMiddleware.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey{}).(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}

// canAccess allows users to act on their own resources and admins on any.
func canAccess(r *http.Request, userID string) bool {
	claims := claimsFrom(r)
	return claims.IsAdmin() || claims.UserID == userID
}
