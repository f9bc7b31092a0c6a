package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/jrsteele09/go-auth-client/token"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores the verified access token claims
	ContextKeyClaims ContextKey = "claims"
)

// ClaimsFromContext returns the claims RequireAuth stored on the request.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok
}

// RequireAuth is middleware that validates the access token in the
// Authorization header and stores its claims on the request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, "unauthorized", "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], s.scheme) {
				writeJSONError(w, "unauthorized", "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			raw := strings.TrimSpace(parts[1])
			if raw == "" {
				writeJSONError(w, "unauthorized", "Empty token", http.StatusUnauthorized)
				return
			}

			claims, err := s.minter.Verify(raw)
			if err != nil {
				s.logger.Debug().Err(err).Msg("access token rejected")
				writeJSONError(w, "unauthorized", "Invalid token", http.StatusUnauthorized)
				return
			}
			if s.isRevoked(claims.ID) {
				writeJSONError(w, "unauthorized", "Token revoked", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRole is middleware that requires role in the token claims.
// Should be chained after RequireAuth.
func (s *Server) RequireRole(role string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !slices.Contains(claims.Roles, role) {
				writeJSONError(w, "forbidden", "Role required: "+role, http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
