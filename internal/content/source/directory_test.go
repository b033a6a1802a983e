package source

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/content-notifier/internal/content"
	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, data string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func newTestDirectory(root string) *Directory {
	d := NewDirectory(root)
	d.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return d
}

func TestDirectory_ListChanged(t *testing.T) {
	root := t.TempDir()

	writeFile(t, root, "blog/shipping-a-queue.md", `---
title: Shipping a queue
date: 2026-03-14
tags: [go, postgres]
---
# Intro

The body of the post.
`)
	writeFile(t, root, "thoughts/small-idea.md", "---\r\ntitle: Small idea\r\ndate: 2026-04-01T08:30:00Z\r\nexcerpt: A custom excerpt\r\n---\r\nShort thought.\r\n")
	writeFile(t, root, "blog/draft.md", "---\ntitle: Draft\ndate: 2026-01-01\ndraft: true\n---\nwip\n")
	writeFile(t, root, "blog/future.md", "---\ntitle: Future\ndate: 2027-01-01\n---\nlater\n")
	writeFile(t, root, "blog/broken.md", "---\ntitle: [unclosed\n---\n")
	writeFile(t, root, "blog/notes.txt", "ignored")
	writeFile(t, root, ".git/HEAD.md", "---\ntitle: Hidden\ndate: 2026-01-01\n---\n")
	writeFile(t, root, "pages/about.html", `<html><head>
<title>About page</title>
<meta name="type" content="blog">
<meta name="slug" content="about-me">
<meta name="date" content="2026-02-01">
<meta name="keywords" content="meta, site">
<meta name="description" content="Who writes this.">
</head><body><article><p>Hello there.</p></article></body></html>`)

	docs, err := newTestDirectory(root).ListChanged(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	about := docs[0]
	assert.Equal(t, "about-me", about.Slug)
	assert.Equal(t, "About page", about.Title)
	assert.Equal(t, content.FormatHTML, about.Format)
	assert.Equal(t, []string{"meta", "site"}, about.Tags)
	assert.Equal(t, "Who writes this.", about.Excerpt)
	assert.Contains(t, about.Body, "Hello there.")

	post := docs[1]
	assert.Equal(t, "shipping-a-queue", post.Slug)
	assert.Equal(t, domain.ContentTypeBlog, post.Type)
	assert.Equal(t, "Shipping a queue", post.Title)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), post.PublishDate)
	assert.Equal(t, []string{"go", "postgres"}, post.Tags)
	assert.Equal(t, "# Intro\n\nThe body of the post.", post.Body)

	thought := docs[2]
	assert.Equal(t, "small-idea", thought.Slug)
	assert.Equal(t, domain.ContentTypeThought, thought.Type)
	assert.Equal(t, "A custom excerpt", thought.Excerpt)
	assert.Equal(t, "Short thought.", thought.Body)
}

func TestDirectory_GetBySlug(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "blog/hello/index.md", "---\ntitle: Hello\ndate: 2026-01-01\n---\nbody\n")

	d := newTestDirectory(root)

	doc, err := d.GetBySlug(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Title)

	_, err = d.GetBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func TestDirectory_ListChanged_MissingRoot(t *testing.T) {
	_, err := NewDirectory(filepath.Join(t.TempDir(), "nope")).ListChanged(context.Background())
	require.Error(t, err)
}

func TestSplitFrontMatter(t *testing.T) {
	fm, body, err := splitFrontMatter([]byte("no front matter"))
	require.NoError(t, err)
	assert.Nil(t, fm)
	assert.Equal(t, "no front matter", string(body))

	_, _, err = splitFrontMatter([]byte("---\ntitle: x\n"))
	assert.Error(t, err)

	fm, body, err = splitFrontMatter([]byte("---\ntitle: x\n---"))
	require.NoError(t, err)
	assert.Equal(t, "title: x", string(fm))
	assert.Empty(t, body)
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2026-03-14", "2026-03-14 10:00", "2026-03-14T10:00:00Z", "2026-03-14T12:00:00+02:00"} {
		got, err := parseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := parseDate("14/03/2026")
	assert.Error(t, err)
}

func TestDirectory_Watch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "blog/a.md", "---\ntitle: A\ndate: 2026-01-01\n---\nbody\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- NewDirectory(root).Watch(ctx, 50*time.Millisecond, func() { calls.Add(1) })
	}()

	// Give the watcher time to register directories.
	time.Sleep(200 * time.Millisecond)

	writeFile(t, root, "blog/b.md", "---\ntitle: B\ndate: 2026-01-02\n---\nbody\n")
	writeFile(t, root, "blog/ignored.txt", "x")

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
