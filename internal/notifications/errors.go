package notifications

import "errors"

// Repository errors.
var (
	ErrRecordNotFound = errors.New("notification record not found")
)

// Pipeline errors.
var (
	ErrContentMissing = errors.New("content item referenced by notification not found")
)
