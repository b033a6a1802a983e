// Package unsubscribe issues, validates and consumes single-use unsubscribe
// tokens and applies the resulting preference changes.
package unsubscribe

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bissquit/content-notifier/internal/delivery"
	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/subscribers"
)

const (
	tokenBytes = 32

	// DefaultTTL is the lifetime of an issued token.
	DefaultTTL = 365 * 24 * time.Hour

	// purgeGrace is how long expired tokens are kept before deletion.
	purgeGrace = 30 * 24 * time.Hour
)

// Issued is a freshly minted token. Token is the plaintext secret and only
// exists here and in the sent email.
type Issued struct {
	Token     string
	URL       string
	Type      domain.TokenType
	ExpiresAt time.Time
}

// PreferencesUpdate is a partial preference change; nil fields keep the
// current value.
type PreferencesUpdate struct {
	BlogUpdates    *bool `json:"blog_updates,omitempty"`
	ThoughtUpdates *bool `json:"thought_updates,omitempty"`
	Announcements  *bool `json:"announcements,omitempty"`
}

// Apply returns p with the non-nil fields of u applied.
func (u PreferencesUpdate) Apply(p domain.Preferences) domain.Preferences {
	if u.BlogUpdates != nil {
		p.BlogUpdates = *u.BlogUpdates
	}
	if u.ThoughtUpdates != nil {
		p.ThoughtUpdates = *u.ThoughtUpdates
	}
	if u.Announcements != nil {
		p.Announcements = *u.Announcements
	}
	return p
}

// Config holds token service settings.
type Config struct {
	BaseURL string
	TTL     time.Duration
}

// Service implements the unsubscribe token lifecycle.
type Service struct {
	repo        Repository
	subscribers subscribers.Store
	baseURL     string
	ttl         time.Duration
	now         func() time.Time
}

// NewService creates a new unsubscribe service.
func NewService(repo Repository, subs subscribers.Store, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Service{
		repo:        repo,
		subscribers: subs,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		ttl:         cfg.TTL,
		now:         time.Now,
	}
}

// Issue mints a token for the subscriber and persists its hash.
func (s *Service) Issue(ctx context.Context, subscriberID string, tokenType domain.TokenType) (Issued, error) {
	if subscriberID == "" {
		return Issued{}, errors.New("subscriber id is required")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return Issued{}, fmt.Errorf("generate token: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now()
	tok := &domain.UnsubscribeToken{
		SubscriberID: subscriberID,
		TokenHash:    HashToken(secret),
		TokenType:    tokenType,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, tok); err != nil {
		return Issued{}, fmt.Errorf("store token: %w", err)
	}

	tokensIssued.WithLabelValues(string(tokenType)).Inc()

	return Issued{
		Token:     secret,
		URL:       s.URLFor(tokenType, secret),
		Type:      tokenType,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// URLFor builds the public link for a token.
func (s *Service) URLFor(tokenType domain.TokenType, secret string) string {
	path := "/unsubscribe"
	if tokenType == domain.TokenTypePreferences {
		path = "/preferences"
	}
	return s.baseURL + path + "?token=" + url.QueryEscape(secret)
}

// Validate returns the stored token if it is known, unused and unexpired.
func (s *Service) Validate(ctx context.Context, secret string) (*domain.UnsubscribeToken, error) {
	if !wellFormed(secret) {
		return nil, ErrTokenInvalid
	}

	tok, err := s.repo.GetByHash(ctx, HashToken(secret))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	if !tok.Usable(s.now()) {
		return nil, ErrTokenInvalid
	}

	return tok, nil
}

// Subscriber returns the subscriber a valid token belongs to.
func (s *Service) Subscriber(ctx context.Context, secret string) (*domain.UnsubscribeToken, *domain.Subscriber, error) {
	tok, err := s.Validate(ctx, secret)
	if err != nil {
		return nil, nil, err
	}
	sub, err := s.subscribers.GetByID(ctx, tok.SubscriberID)
	if err != nil {
		if errors.Is(err, subscribers.ErrSubscriberNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, fmt.Errorf("get subscriber: %w", err)
	}
	return tok, sub, nil
}

// Consume marks the token used and applies the preference change. A nil
// update opts the subscriber out of everything. If the preference write
// fails the token is released so the link keeps working.
func (s *Service) Consume(ctx context.Context, secret string, update *PreferencesUpdate) (*domain.UnsubscribeToken, error) {
	if !wellFormed(secret) {
		return nil, ErrTokenInvalid
	}

	tok, err := s.repo.MarkUsed(ctx, HashToken(secret), s.now())
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			tokensConsumed.WithLabelValues("rejected").Inc()
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}

	if err := s.applyPreferences(ctx, tok.SubscriberID, update); err != nil {
		if relErr := s.repo.Release(ctx, tok.ID); relErr != nil {
			slog.Error("failed to release unsubscribe token",
				"token_id", tok.ID,
				"error", relErr,
			)
		}
		if errors.Is(err, subscribers.ErrSubscriberNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	mode := "full"
	if update != nil {
		mode = "partial"
	}
	tokensConsumed.WithLabelValues(mode).Inc()

	slog.Info("subscriber preferences updated via token",
		"subscriber_id", tok.SubscriberID,
		"mode", mode,
	)

	return tok, nil
}

func (s *Service) applyPreferences(ctx context.Context, subscriberID string, update *PreferencesUpdate) error {
	if update == nil {
		if err := s.subscribers.UpdatePreferences(ctx, subscriberID, subscribers.OptOutAll(), true); err != nil {
			return fmt.Errorf("opt out subscriber: %w", err)
		}
		return nil
	}

	sub, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return fmt.Errorf("get subscriber: %w", err)
	}
	if err := s.subscribers.UpdatePreferences(ctx, subscriberID, update.Apply(sub.Preferences), sub.GlobalOptOut); err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return nil
}

// Header mints a one-click token and returns RFC 8058 list headers.
func (s *Service) Header(ctx context.Context, subscriberID string) (map[string]string, Issued, error) {
	issued, err := s.Issue(ctx, subscriberID, domain.TokenTypeOneClick)
	if err != nil {
		return nil, Issued{}, err
	}
	return HeadersFor(issued), issued, nil
}

// HeadersFor builds list headers from an already issued token.
func HeadersFor(issued Issued) map[string]string {
	return map[string]string{
		"List-Unsubscribe":      delivery.SanitizeHeader("<" + issued.URL + ">"),
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}

// PurgeExpired deletes tokens that expired more than 30 days ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredBefore(ctx, s.now().Add(-purgeGrace))
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return n, nil
}

// HashToken returns the hex SHA-256 of a token secret.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func wellFormed(secret string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	return err == nil && len(raw) == tokenBytes
}
