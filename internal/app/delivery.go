package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bissquit/content-notifier/internal/config"
	"github.com/bissquit/content-notifier/internal/delivery"
	"github.com/bissquit/content-notifier/internal/delivery/devsender"
	"github.com/bissquit/content-notifier/internal/delivery/gmail"
	"github.com/bissquit/content-notifier/internal/delivery/postmark"
	"github.com/bissquit/content-notifier/internal/delivery/smtp"
)

// newDeliveryClient builds the configured provider and applies the standard
// wrappers. ctx scopes the Gmail token source and must outlive the client.
func newDeliveryClient(ctx context.Context, cfg config.DeliveryConfig, logger *slog.Logger) (delivery.Client, error) {
	var (
		client delivery.Client
		err    error
	)

	switch cfg.Provider {
	case config.ProviderSMTP:
		client, err = smtp.NewSender(smtp.Config{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			User:        cfg.SMTP.User,
			Password:    cfg.SMTP.Password,
			FromAddress: cfg.FromAddress,
			DialTimeout: cfg.SMTP.DialTimeout,
		})
	case config.ProviderPostmark:
		client, err = postmark.NewClient(postmark.Config{
			ServerToken:  cfg.Postmark.ServerToken,
			AccountToken: cfg.Postmark.AccountToken,
			FromAddress:  cfg.FromAddress,
			ReplyTo:      cfg.ReplyTo,
			TrackOpens:   cfg.Postmark.TrackOpens,
		})
	case config.ProviderGmail:
		client, err = gmail.NewSender(ctx, gmail.Config{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
			FromAddress:  cfg.FromAddress,
		}, logger)
	case config.ProviderDev:
		logger.Warn("dev delivery provider enabled: emails are written to disk, not sent", "dir", cfg.DevDir)
		client = devsender.NewSender(cfg.DevDir, cfg.FromAddress, logger)
	default:
		return nil, fmt.Errorf("unknown delivery provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return delivery.Wrap(cfg.Provider, client, cfg.RatePerSecond, cfg.Burst), nil
}
