package content

import (
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint returns a deterministic hash of the parts of a document that
// make an edit worth notifying about: title, body, publish date and tags.
func Fingerprint(d Document) string {
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, norm.NFC.String(strings.TrimSpace(t)))
	}
	slices.Sort(tags)

	h, _ := blake2b.New256(nil)
	for _, part := range []string{
		norm.NFC.String(d.Title),
		norm.NFC.String(d.Body),
		d.PublishDate.UTC().Format(time.RFC3339),
		strings.Join(tags, "\x1f"),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
