package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/sayflow/internal/models"
)

// Middleware attaches the verified user to the request context.
type Middleware struct {
	verifier Verifier
}

// NewMiddleware accepts a nil verifier; every token is then rejected.
func NewMiddleware(v Verifier) *Middleware {
	return &Middleware{verifier: v}
}

// Require rejects requests without a valid bearer token.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		user, err := m.verify(r, tokenStr)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) {
				slog.Error("token verification failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Optional attaches a user when a valid token is present and lets every
// request through.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.verify(r, tokenStr)
		if err != nil {
			slog.Debug("ignoring unverified token", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (m *Middleware) verify(r *http.Request, tokenStr string) (*models.User, error) {
	if m.verifier == nil {
		return nil, ErrInvalidToken
	}
	return m.verifier.Verify(r.Context(), tokenStr)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
