package unsubscribe

import "errors"

// Token errors.
var (
	// ErrTokenInvalid covers unknown, malformed, expired and used tokens.
	ErrTokenInvalid = errors.New("invalid or expired link")
	// ErrTokenNotFound is returned by repositories when no usable token matches.
	ErrTokenNotFound = errors.New("token not found")
)
