package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/kenyabank/internal/api/problem"
	"github.com/ayo6706/kenyabank/internal/auth"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	traceContextKey     contextKey = "trace_id"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    uuid.UUID
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// TokenParser validates bearer tokens.
type TokenParser interface {
	Parse(tokenString string) (*auth.Claims, error)
}

// SessionChecker rejects revoked tokens and inactive users.
type SessionChecker interface {
	IsRevoked(ctx context.Context, tokenID string) bool
	ActiveUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware validates the JWT token and injects the caller into the context.
func AuthMiddleware(tokens TokenParser, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/authorization-header-required"), http.StatusText(http.StatusUnauthorized), "Authorization header required")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || tokenString == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token-format"), http.StatusText(http.StatusUnauthorized), "Invalid token format")
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token"), http.StatusText(http.StatusUnauthorized), "Invalid token")
				return
			}
			userID, _ := uuid.Parse(claims.UserID)
			if sessions.IsRevoked(r.Context(), claims.ID) {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/token-revoked"), http.StatusText(http.StatusUnauthorized), "Token has been revoked")
				return
			}
			user, err := sessions.ActiveUser(r.Context(), userID)
			if err != nil {
				if errors.Is(err, domain.ErrUserInactive) || errors.Is(err, domain.ErrUserNotFound) {
					problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/inactive-user"), http.StatusText(http.StatusUnauthorized), "User is inactive")
					return
				}
				zap.L().Error("load authenticated user", zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError, problem.Type("internal-server-error"), http.StatusText(http.StatusInternalServerError), "unexpected server error")
				return
			}

			p := Principal{UserID: userID, Role: user.Role, TokenID: claims.ID}
			if claims.ExpiresAt != nil {
				p.ExpiresAt = claims.ExpiresAt.Time
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole ensures the authenticated user has the required role.
func RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserRoleFromContext(r.Context()) != requiredRole {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), http.StatusText(http.StatusForbidden), "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the authenticated caller.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// UserIDFromContext returns the authenticated user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

// UserRoleFromContext returns the role of the authenticated user.
func UserRoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
