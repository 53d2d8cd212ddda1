package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIssuer(now *time.Time) *TokenIssuer {
	issuer := NewTokenIssuer("jwtsecret-jwtsecret-jwtsecret-32", "web_anon", 10*time.Minute)
	issuer.now = func() time.Time { return *now }
	return issuer
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer(&now)

	token, expires, err := issuer.Mint("42", "")
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), expires)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "web_anon", claims.Role, "issuer role fills a blank role")
	assert.Equal(t, "regwatch", claims.Issuer)
}

func TestTokenIssuerRejects(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer(&now)
	token, _, err := issuer.Mint("42", "web_analyst")
	require.NoError(t, err)

	other := NewTokenIssuer("another-secret-another-secret-32", "web_anon", time.Hour)
	other.now = issuer.now
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	now = now.Add(11 * time.Minute)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(none)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestServiceTokenRemintsNearExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer(&now)
	creds := NewServiceToken(issuer)

	first, ok := creds.CurrentToken()
	require.True(t, ok)
	assert.True(t, creds.IsAuthenticated())

	now = now.Add(5 * time.Minute)
	again, _ := creds.CurrentToken()
	assert.Equal(t, first, again, "token reused while fresh")

	now = now.Add(4*time.Minute + 30*time.Second)
	renewed, _ := creds.CurrentToken()
	assert.NotEqual(t, first, renewed)

	claims, err := issuer.Parse(renewed)
	require.NoError(t, err)
	assert.Equal(t, ServiceSubject, claims.Subject)
}
