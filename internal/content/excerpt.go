package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxExcerptRunes bounds derived excerpts.
const MaxExcerptRunes = 280

var (
	mdLinkPattern    = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdHeadingPattern = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdMarkerPattern  = regexp.MustCompile("[*_`~>]+")
	mdFencePattern   = regexp.MustCompile("(?s)```.*?```")
)

// Excerpt derives a plain-text summary from a body, truncated on a word
// boundary.
func Excerpt(body string, format Format) string {
	var text string
	switch format {
	case FormatHTML:
		text = htmlText(body, true)
	default:
		text = markdownText(body)
	}
	return truncateWords(strings.Join(strings.Fields(text), " "), MaxExcerptRunes)
}

func htmlText(body string, preferParagraphs bool) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("script, style, noscript, pre").Remove()

	if !preferParagraphs {
		return doc.Text()
	}

	// Paragraphs only, skipping navigation and headers.
	var parts []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return doc.Text()
}

func markdownText(body string) string {
	body = mdFencePattern.ReplaceAllString(body, " ")
	// Inline HTML inside markdown.
	if strings.Contains(body, "<") {
		body = htmlText("<div>"+body+"</div>", false)
	}
	body = mdLinkPattern.ReplaceAllString(body, "$1")
	body = mdHeadingPattern.ReplaceAllString(body, "")
	return mdMarkerPattern.ReplaceAllString(body, "")
}

func truncateWords(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.;:-") + "…"
}
