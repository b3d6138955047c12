package auth

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "agent", ExpiresAt: jwt.NewNumericDate(exp)}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestAPIKeyAuthSetsHeader(t *testing.T) {
	h := http.Header{}
	require.NoError(t, NewAPIKeyAuth("k-123").Apply(h))
	assert.Equal(t, "k-123", h.Get("X-API-Key"))
}

func TestJWTAuthReadsExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	a, err := NewJWTAuth(signedToken(t, exp), "", nil)
	require.NoError(t, err)

	assert.False(t, a.IsExpired())
	h := http.Header{}
	require.NoError(t, a.Apply(h))
	assert.Contains(t, h.Get("Authorization"), "Bearer ")
}

func TestJWTAuthRefreshesExpiredToken(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Hour))
	fresh := signedToken(t, time.Now().Add(time.Hour))

	a, err := NewJWTAuth(expired, "refresh-1", func(rt string) (string, string, time.Time, error) {
		assert.Equal(t, "refresh-1", rt)
		return fresh, "refresh-2", time.Now().Add(time.Hour), nil
	})
	require.NoError(t, err)
	require.True(t, a.IsExpired())

	h := http.Header{}
	require.NoError(t, a.Apply(h))
	assert.Equal(t, "Bearer "+fresh, h.Get("Authorization"))
	assert.False(t, a.IsExpired())
}

func TestJWTAuthRefreshFailure(t *testing.T) {
	a, err := NewJWTAuth(signedToken(t, time.Now().Add(-time.Hour)), "r", func(string) (string, string, time.Time, error) {
		return "", "", time.Time{}, errors.New("denied")
	})
	require.NoError(t, err)

	err = a.Apply(http.Header{})
	assert.ErrorContains(t, err, "denied")
}

func TestJWTAuthRejectsGarbage(t *testing.T) {
	_, err := NewJWTAuth("not-a-jwt", "", nil)
	assert.Error(t, err)
}

func TestFromCredentials(t *testing.T) {
	a, err := FromCredentials("", "")
	require.NoError(t, err)
	assert.Equal(t, MethodNone, a.Method())

	a, err = FromCredentials("key", "")
	require.NoError(t, err)
	assert.Equal(t, MethodAPIKey, a.Method())

	a, err = FromCredentials("key", signedToken(t, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, MethodJWT, a.Method())
}
