// Package source reads published content from a directory tree of markdown
// and HTML files.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bissquit/content-notifier/internal/content"
	"github.com/bissquit/content-notifier/internal/domain"
	"gopkg.in/yaml.v3"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type frontMatter struct {
	Title   string   `yaml:"title"`
	Slug    string   `yaml:"slug"`
	Date    string   `yaml:"date"`
	Type    string   `yaml:"type"`
	Tags    []string `yaml:"tags"`
	Excerpt string   `yaml:"excerpt"`
	Draft   bool     `yaml:"draft"`
}

// Directory is a content.Source backed by files under root.
type Directory struct {
	root string
	now  func() time.Time
}

// NewDirectory creates a directory source.
func NewDirectory(root string) *Directory {
	return &Directory{root: root, now: time.Now}
}

// ListChanged returns every published document. Drafts and documents with a
// future publish date are left out; unreadable files are skipped with a warning.
func (d *Directory) ListChanged(ctx context.Context) ([]content.Document, error) {
	var docs []content.Document
	now := d.now()

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			if path != d.root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isContentFile(path) {
			return nil
		}

		doc, err := d.readFile(path)
		if err != nil {
			slog.Warn("skipping unreadable content file", "path", path, "error", err)
			return nil
		}
		if doc.Draft || doc.PublishDate.After(now) {
			return nil
		}

		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk content dir: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].PublishDate.Before(docs[j].PublishDate)
	})

	return docs, nil
}

// GetBySlug returns the published document with the slug.
func (d *Directory) GetBySlug(ctx context.Context, slug string) (*content.Document, error) {
	docs, err := d.ListChanged(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Slug == slug {
			return &docs[i], nil
		}
	}
	return nil, content.ErrContentNotFound
}

func isContentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

func (d *Directory) readFile(path string) (content.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return content.Document{}, err
	}

	var doc content.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		doc, err = parseHTML(data)
	default:
		doc, err = parseMarkdown(data)
	}
	if err != nil {
		return content.Document{}, err
	}

	rel, _ := filepath.Rel(d.root, path)
	if doc.Slug == "" {
		doc.Slug = slugFromPath(rel)
	}
	if doc.Type == "" {
		doc.Type = typeFromPath(rel)
	}

	return doc, nil
}

func parseMarkdown(data []byte) (content.Document, error) {
	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return content.Document{}, err
	}

	var meta frontMatter
	if len(fm) > 0 {
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			return content.Document{}, fmt.Errorf("parse front matter: %w", err)
		}
	}

	doc := content.Document{
		Slug:    meta.Slug,
		Type:    domain.ContentType(strings.ToLower(meta.Type)),
		Title:   strings.TrimSpace(meta.Title),
		Body:    strings.TrimSpace(string(body)),
		Format:  content.FormatMarkdown,
		Excerpt: strings.TrimSpace(meta.Excerpt),
		Tags:    meta.Tags,
		Draft:   meta.Draft,
	}
	if meta.Date != "" {
		if doc.PublishDate, err = parseDate(meta.Date); err != nil {
			return content.Document{}, err
		}
	}

	return doc, nil
}

func splitFrontMatter(data []byte) ([]byte, []byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, normalized, nil
	}

	rest := normalized[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end == -1 {
		return nil, nil, errors.New("unterminated front matter")
	}

	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i != -1 {
		body = body[i+1:]
	} else {
		body = nil
	}

	return rest[:end], body, nil
}

func parseHTML(data []byte) (content.Document, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return content.Document{}, fmt.Errorf("parse html: %w", err)
	}

	meta := func(names ...string) string {
		for _, name := range names {
			sel := page.Find(fmt.Sprintf(`meta[name=%q], meta[property=%q]`, name, name)).First()
			if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	title := meta("title", "og:title")
	if title == "" {
		title = strings.TrimSpace(page.Find("title").First().Text())
	}

	var tags []string
	for _, t := range strings.Split(meta("tags", "keywords"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	bodyHTML, _ := page.Find("article").First().Html()
	if strings.TrimSpace(bodyHTML) == "" {
		bodyHTML, _ = page.Find("body").First().Html()
	}

	doc := content.Document{
		Slug:    meta("slug"),
		Type:    domain.ContentType(strings.ToLower(meta("type"))),
		Title:   title,
		Body:    strings.TrimSpace(bodyHTML),
		Format:  content.FormatHTML,
		Excerpt: meta("description", "og:description", "excerpt"),
		Tags:    tags,
		Draft:   strings.EqualFold(meta("draft"), "true"),
	}
	if date := meta("date", "article:published_time"); date != "" {
		if doc.PublishDate, err = parseDate(date); err != nil {
			return content.Document{}, err
		}
	}

	return doc, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func slugFromPath(rel string) string {
	base := filepath.Base(rel)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "index" {
		base = filepath.Base(filepath.Dir(rel))
	}
	return strings.ToLower(base)
}

func typeFromPath(rel string) domain.ContentType {
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	if strings.HasPrefix(strings.ToLower(first), "thought") {
		return domain.ContentTypeThought
	}
	return domain.ContentTypeBlog
}
