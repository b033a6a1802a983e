// Package jwt issues and validates the bearer tokens that guard the
// pipeline diagnostics endpoints.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired or foreign tokens.
var ErrInvalidToken = errors.New("invalid token")

// Config contains JWT configuration.
type Config struct {
	SecretKey           string
	Issuer              string
	AccessTokenDuration time.Duration
}

// Claims are the token claims.
type Claims struct {
	Role domain.Role `json:"role"`
	gojwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 tokens.
type Authenticator struct {
	config Config
	now    func() time.Time
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(config Config) *Authenticator {
	if config.AccessTokenDuration <= 0 {
		config.AccessTokenDuration = time.Hour
	}
	return &Authenticator{config: config, now: time.Now}
}

// GenerateToken signs a token for subject with role.
func (a *Authenticator) GenerateToken(subject string, role domain.Role) (string, time.Time, error) {
	if a.config.SecretKey == "" {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}

	now := a.now()
	expiresAt := now.Add(a.config.AccessTokenDuration)
	claims := Claims{
		Role: role,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.config.Issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken implements httputil.TokenValidator.
func (a *Authenticator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	if a.config.SecretKey == "" {
		return "", "", ErrInvalidToken
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(a.now),
	}
	if a.config.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(a.config.Issuer))
	}

	claims := &Claims{}
	parsed, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return []byte(a.config.SecretKey), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" || !claims.Role.HasPermission(domain.RoleViewer) {
		return "", "", ErrInvalidToken
	}

	return claims.Subject, claims.Role, nil
}
