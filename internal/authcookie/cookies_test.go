package authcookie

import (
	"net/http"
	"testing"
	"time"

	"blog-web/shared/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProduction(t *testing.T) {
	cases := []struct {
		nodeEnv, vercelEnv string
		want               bool
	}{
		{"production", "", true},
		{"development", "", false},
		{"production", "preview", false},
		{"production", "production", true},
		{"", "production", true},
		{"", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsProduction(tc.nodeEnv, tc.vercelEnv), "NODE_ENV=%q VERCEL_ENV=%q", tc.nodeEnv, tc.vercelEnv)
	}
}

func TestNewAttributes_DomainOnlyInProduction(t *testing.T) {
	prod := NewAttributes(true, "blog.example.com", true)
	assert.Equal(t, ".blog.example.com", prod.Domain)
	assert.Equal(t, "/", prod.Path)
	assert.Equal(t, http.SameSiteLaxMode, prod.SameSite)

	dev := NewAttributes(false, "blog.example.com", false)
	assert.Empty(t, dev.Domain)
	assert.False(t, dev.Secure)

	assert.Equal(t, ".example.com", NewAttributes(true, ".example.com", true).Domain)
}

func TestSetAndDeleteShareAttributes(t *testing.T) {
	attrs := NewAttributes(true, "example.com", true)

	access := attrs.Access("tok", 60)
	assert.False(t, access.HttpOnly)
	assert.Equal(t, 60, access.MaxAge)

	refresh := attrs.Refresh("r", 3600)
	assert.True(t, refresh.HttpOnly)

	for _, name := range []string{AccessTokenName, RefreshTokenName} {
		expired := attrs.Expired(name)
		assert.Equal(t, attrs.Domain, expired.Domain)
		assert.Equal(t, attrs.Path, expired.Path)
		assert.Equal(t, -1, expired.MaxAge)
		assert.Empty(t, expired.Value)
	}
}

func TestMaxAgeFromToken(t *testing.T) {
	now := time.Now()
	claims := &models.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	assert.InDelta(t, 15*60, MaxAgeFromToken(token, now), 1)
	assert.Equal(t, 3600, MaxAgeFromToken("undecodable", now))

	expiredClaims := &models.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, 0, MaxAgeFromToken(expired, now))
}
