//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/eventlog"
	"github.com/bissquit/content-notifier/internal/notifications"
	"github.com/bissquit/content-notifier/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_NewBlogPost(t *testing.T) {
	resetState(t)

	createSubscriber(t, "reader-one@example.com", allPreferences())
	createSubscriber(t, "reader-two@example.com", domain.Preferences{BlogUpdates: true})
	createSubscriber(t, "thoughts-only@example.com", domain.Preferences{ThoughtUpdates: true})
	optedOut := createSubscriber(t, "gone@example.com", allPreferences())
	_, err := testDB.Exec(context.Background(), `UPDATE subscribers SET global_opt_out = true WHERE id = $1`, optedOut)
	require.NoError(t, err)

	writeContent(t, post{
		Slug:    "hello-world",
		Title:   "Hello World",
		Tags:    []string{"go", "email"},
		Excerpt: "First post on the new blog.",
		Body:    "# Hello\n\nThis is the body.",
	})

	summary := triggerRun(t)
	require.NotNil(t, summary.Sync)
	assert.Equal(t, 1, summary.Sync.Created)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Notified)
	assert.NotEmpty(t, summary.CorrelationID)

	_, err = mailpitClient.WaitForMessages(2, 10*time.Second)
	require.NoError(t, err)
	count, err := mailpitClient.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	msg := messageFor(t, "reader-one@example.com")
	assert.Contains(t, msg.Subject, "Hello World")
	assert.Contains(t, msg.Text, testSiteURL+"/blog/hello-world")
	assert.Contains(t, msg.Text, "First post on the new blog.")
	assert.Regexp(t, unsubscribeTokenRe, msg.Text)
	assert.Regexp(t, preferencesTokenRe, msg.Text)
	assert.NotContains(t, msg.Text, "{{")

	headers, err := mailpitClient.GetHeaders(msg.ID)
	require.NoError(t, err)
	require.NotEmpty(t, headers["List-Unsubscribe"])
	assert.Contains(t, headers["List-Unsubscribe"][0], testSiteURL+"/unsubscribe?token=")
	assert.Equal(t, []string{"List-Unsubscribe=One-Click"}, headers["List-Unsubscribe-Post"])

	others, err := mailpitClient.SearchByRecipient("thoughts-only@example.com")
	require.NoError(t, err)
	assert.Empty(t, others)
	others, err = mailpitClient.SearchByRecipient("gone@example.com")
	require.NoError(t, err)
	assert.Empty(t, others)

	var notified bool
	err = testDB.QueryRow(context.Background(),
		`SELECT notified FROM content_items WHERE slug = 'hello-world'`).Scan(&notified)
	require.NoError(t, err)
	assert.True(t, notified)
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	resetState(t)

	createSubscriber(t, "idempotent@example.com", allPreferences())
	writeContent(t, post{Slug: "once", Title: "Only Once", Body: "Sent a single time."})

	first := triggerRun(t)
	assert.Equal(t, 1, first.Sent)

	second := triggerRun(t)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Sent)
	require.NotNil(t, second.Sync)
	assert.Equal(t, 1, second.Sync.Unchanged)

	msgs, err := mailpitClient.SearchByRecipient("idempotent@example.com")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	var records int
	err = testDB.QueryRow(context.Background(), `SELECT COUNT(*) FROM notifications`).Scan(&records)
	require.NoError(t, err)
	assert.Equal(t, 1, records)
}

func TestPipeline_EditReachesOnlyNewSubscribers(t *testing.T) {
	resetState(t)

	createSubscriber(t, "early@example.com", allPreferences())
	writeContent(t, post{Slug: "evolving", Title: "Draft Title", Body: "Original text."})
	first := triggerRun(t)
	require.Equal(t, 1, first.Sent)

	createSubscriber(t, "late@example.com", allPreferences())
	writeContent(t, post{Slug: "evolving", Title: "Final Title", Body: "Rewritten text."})

	second := triggerRun(t)
	require.NotNil(t, second.Sync)
	assert.Equal(t, 1, second.Sync.Updated)
	assert.Equal(t, 1, second.Sent)

	early, err := mailpitClient.SearchByRecipient("early@example.com")
	require.NoError(t, err)
	assert.Len(t, early, 1)

	msg := messageFor(t, "late@example.com")
	assert.Contains(t, msg.Subject, "Final Title")
}

func TestPipeline_ThoughtTemplate(t *testing.T) {
	resetState(t)

	createSubscriber(t, "blog-only@example.com", domain.Preferences{BlogUpdates: true})
	createSubscriber(t, "thinker@example.com", domain.Preferences{ThoughtUpdates: true})
	writeContent(t, post{
		Dir:   "thoughts",
		Slug:  "small-idea",
		Title: "A Small Idea",
		Body:  "Short and sweet.",
	})

	summary := triggerRun(t)
	assert.Equal(t, 1, summary.Sent)

	msg := messageFor(t, "thinker@example.com")
	assert.Contains(t, msg.Text, testSiteURL+"/thoughts/small-idea")
	assert.Contains(t, msg.Text, "Continue reading:")

	blog, err := mailpitClient.SearchByRecipient("blog-only@example.com")
	require.NoError(t, err)
	assert.Empty(t, blog)
}

func TestPipeline_NoSubscribersMarksNotified(t *testing.T) {
	resetState(t)

	writeContent(t, post{Slug: "quiet", Title: "Nobody Listening", Body: "Echo."})

	summary := triggerRun(t)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Notified)

	second := triggerRun(t)
	assert.Equal(t, 0, second.Processed)
}

func TestPipeline_TriggerRequiresSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{name: "missing"},
		{name: "wrong", secret: "not-the-cron-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t)
			if tt.secret != "" {
				client = client.WithHeader("X-Cron-Secret", tt.secret)
			}
			resp, err := client.POST("/api/v1/pipeline/run", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestPipeline_RetryTrigger(t *testing.T) {
	resetState(t)

	client := newTestClient(t).WithHeader("X-Cron-Secret", testCronSecret)
	resp, err := client.POST("/api/v1/pipeline/retry", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data notifications.RunSummary `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, 0, result.Data.Processed)
	assert.Nil(t, result.Data.Sync)
}

func TestPipeline_StatusRequiresAdmin(t *testing.T) {
	resp, err := newTestClient(t).GET("/api/v1/pipeline/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = newTestClient(t).WithToken("not-a-jwt").GET("/api/v1/pipeline/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPipeline_Status(t *testing.T) {
	resetState(t)

	createSubscriber(t, "status@example.com", allPreferences())
	writeContent(t, post{Slug: "status-post", Title: "Status", Body: "Body."})
	triggerRun(t)

	resp, err := newTestClient(t).WithToken(testAdminToken).GET("/api/v1/pipeline/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data notifications.Status `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, 1, result.Data.Queue.Sent)
	assert.Equal(t, 0, result.Data.Unnotified)
	assert.False(t, result.Data.Breaker.Open)
	require.NotNil(t, result.Data.LastRun)
	assert.Equal(t, 1, result.Data.LastRun.Sent)
}

func TestPipeline_EventTrail(t *testing.T) {
	resetState(t)

	createSubscriber(t, "trail@example.com", allPreferences())
	writeContent(t, post{Slug: "traced", Title: "Traced", Body: "Body."})
	summary := triggerRun(t)

	resp, err := newTestClient(t).WithToken(testAdminToken).
		GET("/api/v1/pipeline/events/" + summary.CorrelationID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data []eventlog.Event `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data)

	ops := make(map[string]bool)
	for _, e := range result.Data {
		assert.Equal(t, summary.CorrelationID, e.CorrelationID)
		ops[e.Operation] = true
		for _, v := range e.Metadata {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "trail@example.com")
			}
		}
	}
	assert.True(t, ops["pipeline.run"], "missing root span, got %v", ops)
}

func TestPipeline_EventTrailInvalidID(t *testing.T) {
	resp, err := newTestClientWithoutValidation().WithToken(testAdminToken).
		GET("/api/v1/pipeline/events/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPipeline_FailuresLimit(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{name: "default", query: "", wantStatus: http.StatusOK},
		{name: "explicit", query: "?limit=10", wantStatus: http.StatusOK},
		{name: "zero", query: "?limit=0", wantStatus: http.StatusBadRequest},
		{name: "too large", query: "?limit=500", wantStatus: http.StatusBadRequest},
		{name: "not a number", query: "?limit=ten", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := newTestClientWithoutValidation().WithToken(testAdminToken).
				GET("/api/v1/pipeline/failures" + tt.query)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
