package domain

import (
	"fmt"
	"time"
)

// ContentType represents the kind of published content.
type ContentType string

// Content types.
const (
	ContentTypeBlog    ContentType = "blog"
	ContentTypeThought ContentType = "thought"
)

// IsValid reports whether t is a known content type.
func (t ContentType) IsValid() bool {
	switch t {
	case ContentTypeBlog, ContentTypeThought:
		return true
	}
	return false
}

// Category returns the subscriber preference category that opts into this content type.
func (t ContentType) Category() Category {
	switch t {
	case ContentTypeThought:
		return CategoryThoughtUpdates
	default:
		return CategoryBlogUpdates
	}
}

// ParseContentType converts a raw value into a ContentType.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return t, nil
}

// ContentItem is a published piece of content tracked for notifications.
type ContentItem struct {
	ID          string      `json:"id"`
	Slug        string      `json:"slug"`
	ContentType ContentType `json:"content_type"`
	Title       string      `json:"title"`
	Excerpt     string      `json:"excerpt"`
	PublishDate time.Time   `json:"publish_date"`
	Tags        []string    `json:"tags"`
	Fingerprint string      `json:"content_fingerprint"`
	Notified    bool        `json:"notified"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
