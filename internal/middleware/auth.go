// Package middleware provides the HTTP middleware chain: authentication,
// CORS, tracing, metrics and rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/httputil"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/supabase"
)

// SessionCookie is the cookie the browser client stores its access token in.
const SessionCookie = "sb-access-token"

// SessionClaims are the Supabase access-token claims we consume.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserVerifier resolves an access token into a user at the auth provider.
// Fallback for deployments without a local JWT secret.
type UserVerifier interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// AuthMiddleware authenticates the Supabase session token on every request.
// With a JWT secret configured tokens are verified locally (HS256), otherwise
// each request round-trips to the auth endpoint.
type AuthMiddleware struct {
	jwtSecret []byte
	verifier  UserVerifier
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates the auth middleware. secret may be empty when a
// verifier is provided.
func NewAuthMiddleware(secret string, verifier UserVerifier, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{
		jwtSecret: []byte(secret),
		verifier:  verifier,
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			m.respondError(w, r, errors.Unauthorized("missing access token"))
			return
		}

		userID, role, err := m.verify(r.Context(), token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("token verification failed")
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), userID)
		if role != "" {
			ctx = logging.WithRole(ctx, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) verify(ctx context.Context, token string) (string, string, error) {
	if len(m.jwtSecret) > 0 {
		return m.verifyLocal(token)
	}
	if m.verifier == nil {
		return "", "", errors.Internal("no token verifier configured", nil)
	}
	user, err := m.verifier.GetUser(ctx, token)
	if err != nil {
		return "", "", errors.InvalidToken(err)
	}
	return user.ID, user.Role, nil
}

// verifyLocal checks the HS256 signature with the project's JWT secret.
func (m *AuthMiddleware) verifyLocal(tokenString string) (string, string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return "", "", errors.InvalidToken(err)
	}
	if !token.Valid {
		return "", "", errors.InvalidToken(nil)
	}
	if claims.Subject == "" {
		return "", "", errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	return claims.Subject, claims.Role, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	})
	httputil.WriteError(w, err)
}

// extractToken pulls the access token from the Authorization header, falling
// back to the session cookie set by the browser client.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// GetUserID extracts the authenticated user id from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts the authenticated role from context.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireUserID ensures an authenticated user id is present in context.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
