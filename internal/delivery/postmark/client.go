// Package postmark delivers email through the Postmark transactional API.
package postmark

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bissquit/content-notifier/internal/delivery"
	"github.com/mrz1836/postmark"
)

const providerName = "postmark"

// ErrInvalidConfig is returned by NewClient for incomplete configuration.
var ErrInvalidConfig = errors.New("postmark: invalid config")

// Config holds Postmark credentials and sender identity.
type Config struct {
	ServerToken  string
	AccountToken string
	FromAddress  string
	ReplyTo      string
	TrackOpens   bool
}

type emailAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Client implements delivery.Client with Postmark.
type Client struct {
	api    emailAPI
	config Config
}

// NewClient creates a Postmark-backed client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("%w: from address is required", ErrInvalidConfig)
	}
	if _, err := delivery.ParseAddress(cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("%w: from address: %v", ErrInvalidConfig, err)
	}

	return &Client{
		api:    postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

// Send submits one message. Opens are tracked only when configured and
// links are tracked in the HTML part only.
func (c *Client) Send(ctx context.Context, msg delivery.Message) delivery.Result {
	email := postmark.Email{
		From:       c.config.FromAddress,
		ReplyTo:    c.config.ReplyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		Headers:    headers(msg.Headers),
		TrackOpens: c.config.TrackOpens,
		TrackLinks: "HtmlOnly",
	}

	resp, err := c.api.SendEmail(ctx, email)
	if err != nil {
		return delivery.Result{Err: delivery.NewError(providerName, 0, 0, err.Error(), err)}
	}
	if resp.ErrorCode > 0 {
		return delivery.Result{Err: delivery.NewError(providerName, statusFor(int(resp.ErrorCode)), int(resp.ErrorCode), resp.Message, nil)}
	}

	return delivery.Success(resp.MessageID)
}

func headers(h map[string]string) []postmark.Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]postmark.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, postmark.Header{Name: k, Value: h[k]})
	}
	return out
}

// statusFor maps API error codes onto the HTTP status Postmark documents
// for them, so classification works without the raw response.
func statusFor(code int) int {
	switch code {
	case 10:
		return 401
	case 429:
		return 429
	case 300, 406:
		return 422
	}
	return 0
}
