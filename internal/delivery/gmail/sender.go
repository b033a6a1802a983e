// Package gmail delivers email through the Gmail API using an OAuth2
// refresh token.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/content-notifier/internal/delivery"
	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	providerName    = "gmail"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
)

// Config holds OAuth2 client credentials for the sending account.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FromAddress  string
	TokenURL     string
}

type messageAPI interface {
	send(ctx context.Context, raw string) (string, error)
}

type serviceAPI struct {
	service *gmail.Service
}

func (s serviceAPI) send(ctx context.Context, raw string) (string, error) {
	msg, err := s.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return msg.Id, nil
}

// Sender implements delivery.Client with the Gmail API.
type Sender struct {
	api    messageAPI
	from   string
	logger *slog.Logger
}

// NewSender builds a Gmail sender. Access tokens are refreshed lazily and
// reused until they expire.
func NewSender(ctx context.Context, cfg Config, logger *slog.Logger) (*Sender, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("gmail sender: client id, client secret and refresh token are required")
	}
	if cfg.FromAddress == "" {
		return nil, errors.New("gmail sender: from address is required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		Scopes:       []string{gmail.GmailSendScope},
	}

	base := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	ts := oauth2.ReuseTokenSource(nil, &retryingTokenSource{
		ctx:      ctx,
		base:     base,
		attempts: 3,
		delay:    time.Second,
		logger:   logger,
	})

	service, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	logger.Info("gmail sender configured", "from_address", cfg.FromAddress)

	return &Sender{api: serviceAPI{service: service}, from: cfg.FromAddress, logger: logger}, nil
}

// Send delivers one message and returns the Gmail message id.
func (s *Sender) Send(ctx context.Context, msg delivery.Message) delivery.Result {
	raw := delivery.BuildMIME(s.from, delivery.NewMessageID("gmail.com"), msg)
	encoded := base64.URLEncoding.EncodeToString(raw)

	start := time.Now()
	id, err := s.api.send(ctx, encoded)
	if err != nil {
		s.logger.Warn("gmail send failed",
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return delivery.Result{Err: toError(err)}
	}

	return delivery.Success(id)
}

func toError(err error) *delivery.Error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return delivery.NewError(providerName, gerr.Code, 0, gerr.Message, err)
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		// Token endpoint failures are credential problems; the body may
		// echo client details so it is not kept.
		return delivery.NewError(providerName, http.StatusUnauthorized, 0, "oauth2 token refresh failed: "+rerr.ErrorCode, nil)
	}

	return delivery.NewError(providerName, 0, 0, err.Error(), err)
}

// retryingTokenSource retries transient token refresh failures. Rejected
// grants are not retried.
type retryingTokenSource struct {
	ctx      context.Context
	base     oauth2.TokenSource
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

func (r *retryingTokenSource) Token() (*oauth2.Token, error) {
	var tok *oauth2.Token

	err := retry.Do(
		func() error {
			t, err := r.base.Token()
			if err != nil {
				return err
			}
			tok = t
			return nil
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.MaxDelay(30*time.Second),
		retry.Context(r.ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Info("retrying gmail token refresh", "attempt", n, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			var rerr *oauth2.RetrieveError
			if errors.As(err, &rerr) && rerr.Response != nil {
				code := rerr.Response.StatusCode
				return code == http.StatusTooManyRequests || code >= 500
			}
			return true
		}),
	)
	if err != nil {
		return nil, err
	}

	return tok, nil
}
