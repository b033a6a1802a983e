package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

// TrustedKeys are variables produced by the service itself (canonical URLs,
// site name). They are not HTML-escaped.
var TrustedKeys = map[string]bool{
	"siteName":       true,
	"siteUrl":        true,
	"contentUrl":     true,
	"unsubscribeUrl": true,
	"preferencesUrl": true,
}

var (
	scriptTagPattern    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptOpenPattern   = regexp.MustCompile(`(?i)</?script\b[^>]*>`)
	unsafeSchemePattern = regexp.MustCompile(`(?i)\b(?:javascript|vbscript)\s*:|\bdata\s*:\s*[a-z]+/[a-z0-9.+-]+[;,]`)
)

// stringify converts a variable value to text. Slices join with ", ".
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, stringify(p))
		}
		return strings.Join(parts, ", ")
	case time.Time:
		return val.UTC().Format("Jan 2, 2006")
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UTC().Format("Jan 2, 2006")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// stripUnsafe removes script tags and script-capable URI schemes.
func stripUnsafe(s string) string {
	s = scriptTagPattern.ReplaceAllString(s, "")
	s = scriptOpenPattern.ReplaceAllString(s, "")
	return unsafeSchemePattern.ReplaceAllString(s, "")
}

// sanitizeHeaderValue drops CR, LF and other control characters.
func sanitizeHeaderValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			if r == '\t' {
				return ' '
			}
			return -1
		}
		return r
	}, s)
}

func htmlValue(key, value string) string {
	if TrustedKeys[key] {
		return value
	}
	return html.EscapeString(value)
}
