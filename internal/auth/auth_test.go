package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/sayflow/internal/config"
	"github.com/nikhilbhutani/sayflow/internal/models"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func validClaims(sub string) Claims {
	return Claims{
		Email: "user@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWTVerifier(t *testing.T) {
	id := uuid.New()
	v := NewJWTVerifier(testSecret)

	user, err := v.Verify(context.Background(), signToken(t, testSecret, validClaims(id.String())))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != id || user.Email != "user@example.com" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	id := uuid.NewString()

	expired := validClaims(id)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	cases := map[string]string{
		"wrong secret": signToken(t, "another-secret", validClaims(id)),
		"expired":      signToken(t, testSecret, expired),
		"non-uuid sub": signToken(t, testSecret, validClaims("anonymous")),
		"garbage":      "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestJWTVerifier_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(uuid.NewString()))
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTVerifier(testSecret).Verify(context.Background(), s); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSupabaseVerifier(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("missing apikey header")
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"id":"`+id.String()+`","email":"a@b.c"}`)
	}))
	defer srv.Close()

	v := NewSupabaseVerifier(srv.URL+"/", "anon")

	user, err := v.Verify(context.Background(), "good")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != id || user.Email != "a@b.c" {
		t.Errorf("unexpected user %+v", user)
	}

	if _, err := v.Verify(context.Background(), "bad"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSupabaseVerifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewSupabaseVerifier(srv.URL, "anon").Verify(context.Background(), "tok")
	if err == nil || errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestNewVerifier(t *testing.T) {
	if _, ok := NewVerifier(config.AuthConfig{JWTSecret: "s", SupabaseURL: "http://x"}).(*JWTVerifier); !ok {
		t.Error("expected JWT verifier when a secret is set")
	}
	if _, ok := NewVerifier(config.AuthConfig{SupabaseURL: "http://x", SupabaseAnonKey: "k"}).(*SupabaseVerifier); !ok {
		t.Error("expected Supabase verifier without a secret")
	}
	if v := NewVerifier(config.AuthConfig{}); v != nil {
		t.Errorf("expected nil verifier, got %T", v)
	}
}

type staticVerifier struct {
	user *models.User
}

func (s staticVerifier) Verify(_ context.Context, token string) (*models.User, error) {
	if token != "good" {
		return nil, ErrInvalidToken
	}
	return s.user, nil
}

func TestMiddleware(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	m := NewMiddleware(staticVerifier{user: user})

	var seen *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		wrap       func(http.Handler) http.Handler
		header     string
		wantStatus int
		wantUser   bool
	}{
		{"require valid", m.Require, "Bearer good", http.StatusNoContent, true},
		{"require missing", m.Require, "", http.StatusUnauthorized, false},
		{"require invalid", m.Require, "Bearer bad", http.StatusUnauthorized, false},
		{"require wrong scheme", m.Require, "Basic good", http.StatusUnauthorized, false},
		{"optional valid", m.Optional, "Bearer good", http.StatusNoContent, true},
		{"optional missing", m.Optional, "", http.StatusNoContent, false},
		{"optional invalid", m.Optional, "Bearer bad", http.StatusNoContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.wrap(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if (seen != nil) != tt.wantUser {
				t.Errorf("user attached = %v, want %v", seen != nil, tt.wantUser)
			}
		})
	}
}

func TestMiddleware_NilVerifier(t *testing.T) {
	m := NewMiddleware(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	m.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if id := UserIDFromContext(context.Background()); id != uuid.Nil {
		t.Errorf("expected nil id, got %s", id)
	}
	id := uuid.New()
	if got := UserIDFromContext(WithUser(context.Background(), &models.User{ID: id})); got != id {
		t.Errorf("got %s, want %s", got, id)
	}
}
