// Package devsender implements a delivery client for local development that
// writes messages to disk instead of sending them.
package devsender

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bissquit/content-notifier/internal/delivery"
	"github.com/google/uuid"
)

const providerName = "dev"

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Sender saves each message as an .eml file. With an empty dir it only logs.
type Sender struct {
	dir    string
	from   string
	logger *slog.Logger
}

// NewSender creates a development sender writing into dir.
func NewSender(dir, from string, logger *slog.Logger) *Sender {
	return &Sender{dir: dir, from: from, logger: logger}
}

// Send writes the message and returns a generated id.
func (s *Sender) Send(_ context.Context, msg delivery.Message) delivery.Result {
	id := uuid.NewString()

	if s.dir == "" {
		s.logger.Info("dev email",
			"id", id,
			"to", delivery.MaskEmail(msg.To),
			"subject", msg.Subject,
			"tag", msg.Tag,
		)
		return delivery.Success(id)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return delivery.Failure(providerName, fmt.Errorf("create directory: %w", err))
	}

	identifier := msg.Tag
	if identifier == "" {
		identifier = msg.Subject
	}
	name := fmt.Sprintf("%s_%s_%s.eml",
		time.Now().Format("2006_01_02_150405"),
		sanitizeFilename(identifier),
		id[:8],
	)

	raw := delivery.BuildMIME(s.from, "<"+id+"@localhost>", msg)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return delivery.Failure(providerName, fmt.Errorf("write message: %w", err))
	}

	s.logger.Debug("dev email written", "id", id, "path", path)

	return delivery.Success(id)
}

func sanitizeFilename(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.ToLower(s), "_")
	s = strings.Trim(s, "_")
	if len(s) > 50 {
		s = s[:50]
	}
	if s == "" {
		return "email"
	}
	return s
}
