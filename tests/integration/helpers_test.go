//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/notifications"
	subpg "github.com/bissquit/content-notifier/internal/subscribers/postgres"
	"github.com/bissquit/content-notifier/internal/testutil"
	"github.com/stretchr/testify/require"
)

var (
	unsubscribeTokenRe = regexp.MustCompile(`/unsubscribe\?token=([A-Za-z0-9_-]+)`)
	preferencesTokenRe = regexp.MustCompile(`/preferences\?token=([A-Za-z0-9_-]+)`)
)

type post struct {
	Dir     string
	Slug    string
	Title   string
	Type    string
	Date    string
	Tags    []string
	Excerpt string
	Body    string
}

// writeContent writes a markdown document with front matter into the
// content directory watched by the application.
func writeContent(t *testing.T, p post) {
	t.Helper()

	if p.Dir == "" {
		p.Dir = "blog"
	}
	if p.Date == "" {
		p.Date = time.Now().UTC().Add(-time.Hour).Format("2006-01-02")
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", p.Title)
	fmt.Fprintf(&b, "date: %s\n", p.Date)
	if p.Type != "" {
		fmt.Fprintf(&b, "type: %s\n", p.Type)
	}
	if p.Excerpt != "" {
		fmt.Fprintf(&b, "excerpt: %q\n", p.Excerpt)
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(p.Tags, ", "))
	}
	b.WriteString("---\n\n")
	b.WriteString(p.Body)
	b.WriteString("\n")

	dir := filepath.Join(testContentDir, p.Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, p.Slug+".md"), []byte(b.String()), 0o644))
}

// createSubscriber inserts an active subscriber and returns its ID.
func createSubscriber(t *testing.T, email string, prefs domain.Preferences) string {
	t.Helper()

	sub := &domain.Subscriber{
		Email:       email,
		Preferences: prefs,
		EmailStatus: domain.EmailStatusActive,
	}
	require.NoError(t, subpg.NewRepository(testDB).Create(context.Background(), sub))
	return sub.ID
}

func allPreferences() domain.Preferences {
	return domain.Preferences{BlogUpdates: true, ThoughtUpdates: true, Announcements: true}
}

// resetState truncates every pipeline table, clears the content tree and
// empties the Mailpit inbox.
func resetState(t *testing.T) {
	t.Helper()

	_, err := testDB.Exec(context.Background(), `
		TRUNCATE pipeline_events, unsubscribe_tokens, notifications, content_items, subscribers CASCADE
	`)
	require.NoError(t, err)

	entries, err := os.ReadDir(testContentDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.RemoveAll(filepath.Join(testContentDir, e.Name())))
	}

	require.NoError(t, mailpitClient.DeleteAllMessages())
}

// triggerRun calls the run endpoint with the cron secret and decodes the
// summary.
func triggerRun(t *testing.T) notifications.RunSummary {
	t.Helper()

	client := newTestClient(t).WithHeader("X-Cron-Secret", testCronSecret)
	resp, err := client.POST("/api/v1/pipeline/run", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, testutil.ReadBody(t, resp))

	var result struct {
		Data notifications.RunSummary `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// messageFor waits for the single message delivered to email and returns it
// with its body loaded.
func messageFor(t *testing.T, email string) *MailpitMessage {
	t.Helper()

	var found []MailpitMessage
	require.Eventually(t, func() bool {
		msgs, err := mailpitClient.SearchByRecipient(email)
		if err != nil {
			return false
		}
		found = msgs
		return len(msgs) > 0
	}, 10*time.Second, 100*time.Millisecond, "no message for %s", email)
	require.Len(t, found, 1, "expected exactly one message for %s", email)

	msg, err := mailpitClient.GetMessageByID(found[0].ID)
	require.NoError(t, err)
	return msg
}

func extractToken(t *testing.T, re *regexp.Regexp, text string) string {
	t.Helper()
	m := re.FindStringSubmatch(text)
	require.Len(t, m, 2, "token link not found in:\n%s", text)
	return m[1]
}
