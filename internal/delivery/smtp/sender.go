// Package smtp delivers email through an SMTP relay using STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/bissquit/content-notifier/internal/delivery"
)

const providerName = "smtp"

// Config holds SMTP sender configuration.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	DialTimeout time.Duration
}

// Sender implements delivery.Client via SMTP.
type Sender struct {
	config Config
	auth   smtp.Auth
}

// NewSender creates a new SMTP sender.
func NewSender(config Config) (*Sender, error) {
	if config.Host == "" {
		return nil, errors.New("smtp sender: host is required")
	}
	if config.FromAddress == "" {
		return nil, errors.New("smtp sender: from address is required")
	}

	// Set defaults
	if config.Port == 0 {
		config.Port = 587
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}

	slog.Info("smtp sender configured",
		"smtp_host", config.Host,
		"smtp_port", config.Port,
		"from_address", config.FromAddress,
	)

	return &Sender{
		config: config,
		auth:   auth,
	}, nil
}

// Send delivers one message and returns its Message-ID as the provider id.
func (s *Sender) Send(ctx context.Context, msg delivery.Message) delivery.Result {
	from := delivery.ExtractEmail(s.config.FromAddress)
	messageID := delivery.NewMessageID(domainOf(from))
	raw := delivery.BuildMIME(s.config.FromAddress, messageID, msg)

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	if err := s.sendWithSTARTTLS(ctx, addr, tlsConfig, from, msg.To, raw); err != nil {
		return delivery.Result{Err: toError(err)}
	}

	return delivery.Success(messageID)
}

// sendWithSTARTTLS sends an email using STARTTLS (port 587).
func (s *Sender) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, from, rcpt string, msg []byte) error {
	dialer := &net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	// STARTTLS if available
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(rcpt); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// toError maps SMTP reply codes onto delivery.Error. Credentials never
// appear in net/smtp errors, so the message is safe to keep.
func toError(err error) *delivery.Error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return delivery.NewError(providerName, tpErr.Code, 0, err.Error(), err)
	}
	return delivery.NewError(providerName, 0, 0, err.Error(), err)
}

func domainOf(addr string) string {
	if at := strings.LastIndex(addr, "@"); at != -1 {
		return addr[at+1:]
	}
	return ""
}
