package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/sayflow/internal/config"
	"github.com/nikhilbhutani/sayflow/internal/models"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidToken is returned for any token that does not resolve to a user.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// NewVerifier prefers local JWT verification and falls back to asking Supabase.
// It returns nil when neither is configured.
func NewVerifier(cfg config.AuthConfig) Verifier {
	switch {
	case cfg.JWTSecret != "":
		return NewJWTVerifier(cfg.JWTSecret)
	case cfg.SupabaseURL != "":
		key := cfg.SupabaseServiceKey
		if key == "" {
			key = cfg.SupabaseAnonKey
		}
		return NewSupabaseVerifier(cfg.SupabaseURL, key)
	default:
		return nil
	}
}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with the project's JWT secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (*models.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	return &models.User{ID: userID, Email: claims.Email}, nil
}

// SupabaseVerifier asks the Supabase auth server who owns a token. Concurrent
// lookups of the same token share one request.
type SupabaseVerifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	inflight   singleflight.Group
}

func NewSupabaseVerifier(baseURL, apiKey string) *SupabaseVerifier {
	return &SupabaseVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type supabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*models.User, error) {
	u, err, _ := v.inflight.Do(token, func() (interface{}, error) {
		return v.fetchUser(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return u.(*models.User), nil
}

func (v *SupabaseVerifier) fetchUser(ctx context.Context, token string) (*models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch user failed (status %d): %s", resp.StatusCode, string(body))
	}

	var su supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&su); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	userID, err := uuid.Parse(su.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidToken, su.ID)
	}
	return &models.User{ID: userID, Email: su.Email}, nil
}
