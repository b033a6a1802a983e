package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(now time.Time) *Authenticator {
	a := NewAuthenticator(Config{SecretKey: "test-secret", Issuer: "content-notifier", AccessTokenDuration: time.Hour})
	a.now = func() time.Time { return now }
	return a
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(now)

	token, expiresAt, err := a.GenerateToken("ops@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	subject, role, err := a.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", subject)
	assert.Equal(t, domain.RoleAdmin, role)
}

func TestAuthenticator_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(now)

	valid, _, err := a.GenerateToken("ops", domain.RoleAdmin)
	require.NoError(t, err)

	expired := newTestAuthenticator(now.Add(-2 * time.Hour))
	expiredToken, _, err := expired.GenerateToken("ops", domain.RoleAdmin)
	require.NoError(t, err)

	otherSecret := NewAuthenticator(Config{SecretKey: "other", Issuer: "content-notifier"})
	otherSecret.now = a.now
	foreign, _, err := otherSecret.GenerateToken("ops", domain.RoleAdmin)
	require.NoError(t, err)

	otherIssuer := NewAuthenticator(Config{SecretKey: "test-secret", Issuer: "someone-else"})
	otherIssuer.now = a.now
	wrongIssuer, _, err := otherIssuer.GenerateToken("ops", domain.RoleAdmin)
	require.NoError(t, err)

	unknownRole, _, err := a.GenerateToken("ops", domain.Role("root"))
	require.NoError(t, err)

	none := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "ops",
			Issuer:    "content-notifier",
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"tampered", valid + "x"},
		{"expired", expiredToken},
		{"foreign secret", foreign},
		{"wrong issuer", wrongIssuer},
		{"unknown role", unknownRole},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := a.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAuthenticator_NoSecret(t *testing.T) {
	a := NewAuthenticator(Config{})

	_, _, err := a.GenerateToken("ops", domain.RoleAdmin)
	assert.Error(t, err)

	_, _, err = a.ValidateToken(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
