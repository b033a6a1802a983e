package domain

import "fmt"

// Category is a subscriber opt-in category.
type Category string

// Subscription categories.
const (
	CategoryBlogUpdates    Category = "blog_updates"
	CategoryThoughtUpdates Category = "thought_updates"
	CategoryAnnouncements  Category = "announcements"
)

// ParseCategory converts a raw value into a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryBlogUpdates, CategoryThoughtUpdates, CategoryAnnouncements:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// EmailStatus describes deliverability of a subscriber address.
type EmailStatus string

// Email statuses.
const (
	EmailStatusActive     EmailStatus = "active"
	EmailStatusBounced    EmailStatus = "bounced"
	EmailStatusComplained EmailStatus = "complained"
	EmailStatusUnverified EmailStatus = "unverified"
)

// Preferences holds per-category opt-in flags.
type Preferences struct {
	BlogUpdates    bool `json:"blog_updates"`
	ThoughtUpdates bool `json:"thought_updates"`
	Announcements  bool `json:"announcements"`
}

// Subscriber is a recipient owned by the external subscriber directory.
type Subscriber struct {
	ID           string      `json:"id"`
	Email        string      `json:"-"`
	Preferences  Preferences `json:"preferences"`
	GlobalOptOut bool        `json:"global_opt_out"`
	EmailStatus  EmailStatus `json:"email_status"`
}

// Wants reports whether the subscriber should receive mail in the category.
func (s *Subscriber) Wants(c Category) bool {
	if s.GlobalOptOut || s.Email == "" {
		return false
	}
	if s.EmailStatus != "" && s.EmailStatus != EmailStatusActive {
		return false
	}
	switch c {
	case CategoryBlogUpdates:
		return s.Preferences.BlogUpdates
	case CategoryThoughtUpdates:
		return s.Preferences.ThoughtUpdates
	case CategoryAnnouncements:
		return s.Preferences.Announcements
	}
	return false
}
