// Package auth supplies the credentials presented to the ticket API and the
// tenant channel.
package auth

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Method identifies how credentials are presented.
type Method int

const (
	// MethodNone sends no credentials
	MethodNone Method = iota
	// MethodAPIKey sends an API key header
	MethodAPIKey
	// MethodJWT sends a bearer token
	MethodJWT
)

// Authenticator supplies request credentials.
type Authenticator interface {
	// Apply sets the credential headers on h, refreshing first if needed
	Apply(h http.Header) error
	// IsExpired reports whether the credential must be refreshed
	IsExpired() bool
	// Refresh renews the credential if possible
	Refresh() error
	// Method returns the presentation method
	Method() Method
}

// APIKeyAuth sends a static API key.
type APIKeyAuth struct {
	APIKey string
	Header string // Default: "X-API-Key"
}

// NewAPIKeyAuth creates an API key authenticator
func NewAPIKeyAuth(apiKey string) *APIKeyAuth {
	return &APIKeyAuth{APIKey: apiKey, Header: "X-API-Key"}
}

// Apply sets the API key header
func (a *APIKeyAuth) Apply(h http.Header) error {
	h.Set(a.Header, a.APIKey)
	return nil
}

// IsExpired always returns false for API keys
func (a *APIKeyAuth) IsExpired() bool { return false }

// Refresh is not applicable for API keys
func (a *APIKeyAuth) Refresh() error { return nil }

// Method returns MethodAPIKey
func (a *APIKeyAuth) Method() Method { return MethodAPIKey }

// RefreshFunc exchanges a refresh token for a new token pair.
type RefreshFunc func(refreshToken string) (token, newRefresh string, expiresAt time.Time, err error)

// JWTAuth sends a bearer token and refreshes it shortly before expiry.
type JWTAuth struct {
	mu           sync.Mutex
	token        string
	refreshToken string
	expiresAt    time.Time
	refresh      RefreshFunc
	now          func() time.Time
}

// NewJWTAuth creates a JWT authenticator. The expiry is read from the
// token's exp claim; the signature is not verified because the server is
// the only party that needs to trust it.
func NewJWTAuth(token, refreshToken string, refresh RefreshFunc) (*JWTAuth, error) {
	expiresAt, err := TokenExpiry(token)
	if err != nil {
		return nil, err
	}
	return &JWTAuth{
		token:        token,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
		refresh:      refresh,
		now:          time.Now,
	}, nil
}

// TokenExpiry extracts the exp claim of a JWT. Tokens without exp never
// expire and yield the zero time.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Apply sets the Authorization header, refreshing an expired token first
func (a *JWTAuth) Apply(h http.Header) error {
	if a.IsExpired() {
		if err := a.Refresh(); err != nil {
			return fmt.Errorf("failed to refresh authentication: %w", err)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	h.Set("Authorization", "Bearer "+a.token)
	return nil
}

// IsExpired checks the token expiry with a one minute buffer
func (a *JWTAuth) IsExpired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.expiresAt.IsZero() {
		return false
	}
	return a.now().After(a.expiresAt.Add(-1 * time.Minute))
}

// Refresh renews the token using the refresh token
func (a *JWTAuth) Refresh() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refresh == nil {
		return fmt.Errorf("no refresh function configured")
	}

	token, refreshToken, expiresAt, err := a.refresh(a.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	a.token = token
	a.refreshToken = refreshToken
	a.expiresAt = expiresAt
	return nil
}

// Method returns MethodJWT
func (a *JWTAuth) Method() Method { return MethodJWT }

// NoAuth sends no credentials.
type NoAuth struct{}

// NewNoAuth creates a no-auth authenticator
func NewNoAuth() *NoAuth { return &NoAuth{} }

// Apply does nothing
func (NoAuth) Apply(http.Header) error { return nil }

// IsExpired always returns false
func (NoAuth) IsExpired() bool { return false }

// Refresh is not applicable
func (NoAuth) Refresh() error { return nil }

// Method returns MethodNone
func (NoAuth) Method() Method { return MethodNone }

// FromCredentials picks an authenticator: a token wins over an API key,
// and neither yields NoAuth.
func FromCredentials(apiKey, token string) (Authenticator, error) {
	switch {
	case token != "":
		return NewJWTAuth(token, "", nil)
	case apiKey != "":
		return NewAPIKeyAuth(apiKey), nil
	default:
		return NewNoAuth(), nil
	}
}
