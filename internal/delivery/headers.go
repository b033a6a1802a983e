package delivery

import (
	"net/mail"
	"strings"
)

// SanitizeHeader removes CR, LF and other control characters so a value
// cannot start a new header line.
func SanitizeHeader(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t':
			b.WriteRune(' ')
		case r < 32 || r == 127:
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// ParseAddress validates a single recipient and returns the bare address.
func ParseAddress(s string) (string, error) {
	addr, err := mail.ParseAddress(SanitizeHeader(s))
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}

// ExtractEmail extracts the address from formats like "Name <email@example.com>".
func ExtractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= 32 || r >= 127 || r == ':' {
			return false
		}
	}
	return true
}

// MaskEmail hides the local part of an address for logs.
func MaskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
