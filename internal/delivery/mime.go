package delivery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"sort"
	"strings"
	"time"
)

// NewMessageID returns a unique RFC 5322 Message-ID for the domain.
func NewMessageID(domain string) string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s.%d@%s>", hex.EncodeToString(b[:]), time.Now().UnixNano(), domain)
}

// BuildMIME renders msg as a multipart/alternative RFC 5322 message.
// Header values must already be sanitized by Message.Validate.
func BuildMIME(from, messageID string, msg Message) []byte {
	var b strings.Builder

	boundary := "alt-" + strings.Trim(messageID, "<>")
	boundary = strings.NewReplacer("@", "-", ".", "-").Replace(boundary)

	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	// Headers in deterministic order
	if from != "" {
		writeHeader("From", SanitizeHeader(from))
	}
	writeHeader("To", msg.To)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader("Message-ID", messageID)
	writeHeader("MIME-Version", "1.0")

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(k, msg.Headers[k])
	}

	writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")

	writePart := func(contentType, body string) {
		if body == "" {
			return
		}
		b.WriteString("--" + boundary + "\r\n")
		writeHeader("Content-Type", contentType+"; charset=\"utf-8\"")
		writeHeader("Content-Transfer-Encoding", "quoted-printable")
		b.WriteString("\r\n")
		qp := quotedprintable.NewWriter(&b)
		_, _ = qp.Write([]byte(body))
		_ = qp.Close()
		b.WriteString("\r\n")
	}

	writePart("text/plain", msg.Text)
	writePart("text/html", msg.HTML)
	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String())
}
