package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// UserIDFromContext returns the authenticated user id, or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return uuid.Nil
	}
	id, _ := claims.UserID()
	return id
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Authenticate returns middleware that validates bearer tokens.
func Authenticate(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuthenticate attaches claims when a bearer token is present and
// passes anonymous requests through. A malformed or invalid token is still
// rejected.
func OptionalAuthenticate(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := extractAndValidate(r, jwtMgr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// AuthenticateQuery validates a token passed as ?token=, for websocket
// clients that cannot set headers.
func AuthenticateQuery(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "missing token")
				return
			}
			claims, err := jwtMgr.ValidateToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole returns middleware that admits only the given roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	roleSet := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "no auth context")
				return
			}
			if !roleSet[claims.Role] {
				writeError(w, http.StatusForbidden, domain.CodeForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateToken(parts[1])
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"code":%q,"message":%q}`, code, msg)
}
