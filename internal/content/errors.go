package content

import "errors"

// Content errors.
var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidDocument = errors.New("invalid content document")
)
