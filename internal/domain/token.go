package domain

import "time"

// TokenType distinguishes the purpose of an unsubscribe token.
type TokenType string

// Token types.
const (
	TokenTypeOneClick    TokenType = "one_click"
	TokenTypePreferences TokenType = "preferences"
)

// UnsubscribeToken is a persisted single-use unsubscribe credential.
// Only the hash of the secret is stored.
type UnsubscribeToken struct {
	ID           string
	SubscriberID string
	TokenHash    string
	TokenType    TokenType
	ExpiresAt    time.Time
	UsedAt       *time.Time
	CreatedAt    time.Time
}

// Usable reports whether the token may still be consumed at now.
func (t *UnsubscribeToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
