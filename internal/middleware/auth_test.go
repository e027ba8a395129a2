package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/supabase"
)

const testSecret = "super-secret-jwt-key"

func signTestToken(t *testing.T, secret, userID string, expired bool) string {
	t.Helper()
	claims := &SessionClaims{
		Email: "test@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func okHandler(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = GetUserID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthValidBearerToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, logging.Nop(), nil)

	var userID string
	handler := m.Handler(okHandler(&userID))

	req := httptest.NewRequest("GET", "/api/credits", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, testSecret, "user-123", false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-123" {
		t.Fatalf("user id = %q, want user-123", userID)
	}
}

func TestAuthSessionCookie(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, logging.Nop(), nil)

	var userID string
	handler := m.Handler(okHandler(&userID))

	req := httptest.NewRequest("GET", "/api/credits", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: signTestToken(t, testSecret, "user-456", false)})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-456" {
		t.Fatalf("user id = %q, want user-456", userID)
	}
}

func TestAuthMissingToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, logging.Nop(), nil)
	handler := m.Handler(okHandler(nil))

	req := httptest.NewRequest("GET", "/api/credits", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMalformedHeader(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, logging.Nop(), nil)
	handler := m.Handler(okHandler(nil))

	for _, header := range []string{"token123", "Basic abc", "Bearer "} {
		req := httptest.NewRequest("GET", "/api/credits", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestAuthExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, logging.Nop(), nil)
	handler := m.Handler(okHandler(nil))

	req := httptest.NewRequest("GET", "/api/credits", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, testSecret, "user-123", true))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthWrongSecret(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, logging.Nop(), nil)
	handler := m.Handler(okHandler(nil))

	req := httptest.NewRequest("GET", "/api/credits", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "other-secret", "user-123", false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthSkipPaths(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, logging.Nop(), []string{"/healthz"})
	handler := m.Handler(okHandler(nil))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for skip path", rec.Code)
	}
}

type stubVerifier struct {
	user *supabase.User
	err  error
}

func (s *stubVerifier) GetUser(ctx context.Context, accessToken string) (*supabase.User, error) {
	return s.user, s.err
}

func TestAuthProviderFallback(t *testing.T) {
	m := NewAuthMiddleware("", &stubVerifier{user: &supabase.User{ID: "user-789", Role: "authenticated"}}, logging.Nop(), nil)

	var userID string
	handler := m.Handler(okHandler(&userID))

	req := httptest.NewRequest("GET", "/api/credits", nil)
	req.Header.Set("Authorization", "Bearer opaque-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-789" {
		t.Fatalf("user id = %q, want user-789", userID)
	}
}

func TestAuthProviderFallbackRejects(t *testing.T) {
	m := NewAuthMiddleware("", &stubVerifier{err: fmt.Errorf("invalid token")}, logging.Nop(), nil)
	handler := m.Handler(okHandler(nil))

	req := httptest.NewRequest("GET", "/api/credits", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireUserID(t *testing.T) {
	handler := RequireUserID(okHandler(nil))

	req := httptest.NewRequest("GET", "/api/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without user id", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/test", nil)
	req = req.WithContext(logging.WithUserID(context.Background(), "user-123"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with user id", rec.Code)
	}
}
