package notifications

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/content-notifier/internal/content"
	"github.com/bissquit/content-notifier/internal/delivery"
	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/subscribers"
	"github.com/bissquit/content-notifier/internal/unsubscribe"
)

type fakeTracker struct {
	mu      sync.Mutex
	items   map[string]*domain.ContentItem
	syncErr error
	synced  int
}

func newFakeTracker(items ...domain.ContentItem) *fakeTracker {
	t := &fakeTracker{items: make(map[string]*domain.ContentItem)}
	for i := range items {
		item := items[i]
		t.items[item.ID] = &item
	}
	return t
}

func (t *fakeTracker) Sync(_ context.Context) (content.SyncResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.synced++
	if t.syncErr != nil {
		return content.SyncResult{}, t.syncErr
	}
	return content.SyncResult{Discovered: len(t.items), Unchanged: len(t.items)}, nil
}

func (t *fakeTracker) ListUnnotified(_ context.Context) ([]domain.ContentItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.ContentItem
	for _, item := range t.items {
		if !item.Notified {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishDate.Before(out[j].PublishDate) })
	return out, nil
}

func (t *fakeTracker) CountUnnotified(ctx context.Context) (int, error) {
	items, err := t.ListUnnotified(ctx)
	return len(items), err
}

func (t *fakeTracker) MarkNotified(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return content.ErrContentNotFound
	}
	item.Notified = true
	return nil
}

func (t *fakeTracker) GetByID(_ context.Context, id string) (*domain.ContentItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return nil, content.ErrContentNotFound
	}
	cp := *item
	return &cp, nil
}

// edit simulates the detector resetting an item after a fingerprint change.
func (t *fakeTracker) edit(id, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[id].Title = title
	t.items[id].Notified = false
}

func (t *fakeTracker) notified(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items[id].Notified
}

type fakeSubscribers struct {
	mu   sync.Mutex
	subs map[string]*domain.Subscriber
}

func newFakeSubscribers(subs ...domain.Subscriber) *fakeSubscribers {
	s := &fakeSubscribers{subs: make(map[string]*domain.Subscriber)}
	for i := range subs {
		sub := subs[i]
		s.subs[sub.ID] = &sub
	}
	return s
}

func (s *fakeSubscribers) ListByCategory(_ context.Context, category domain.Category) ([]domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Subscriber
	for _, sub := range s.subs {
		if sub.Wants(category) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeSubscribers) GetByID(_ context.Context, id string) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, subscribers.ErrSubscriberNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *fakeSubscribers) UpdatePreferences(_ context.Context, id string, prefs domain.Preferences, globalOptOut bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return subscribers.ErrSubscriberNotFound
	}
	sub.Preferences = prefs
	sub.GlobalOptOut = globalOptOut
	return nil
}

type fakeRecords struct {
	mu      sync.Mutex
	seq     int
	records map[string]*domain.NotificationRecord
	order   []string
	pairs   map[string]bool
	now     func() time.Time
}

func newFakeRecords(now func() time.Time) *fakeRecords {
	return &fakeRecords{
		records: make(map[string]*domain.NotificationRecord),
		pairs:   make(map[string]bool),
		now:     now,
	}
}

func (r *fakeRecords) CreatePending(_ context.Context, item domain.ContentItem, subscriberIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := 0
	for _, subID := range subscriberIDs {
		key := subID + "/" + item.ID
		if r.pairs[key] {
			continue
		}
		r.pairs[key] = true
		r.seq++
		rec := &domain.NotificationRecord{
			ID:           fmt.Sprintf("rec-%d", r.seq),
			SubscriberID: subID,
			ContentID:    item.ID,
			ContentType:  item.ContentType,
			Status:       domain.NotificationStatusPending,
			CreatedAt:    r.now(),
			UpdatedAt:    r.now(),
		}
		r.records[rec.ID] = rec
		r.order = append(r.order, rec.ID)
		created++
	}
	return created, nil
}

func (r *fakeRecords) ListPendingByContent(_ context.Context, contentID string) ([]domain.NotificationRecord, error) {
	return r.filter(func(rec *domain.NotificationRecord) bool {
		return rec.ContentID == contentID && rec.Status == domain.NotificationStatusPending
	}), nil
}

func (r *fakeRecords) ListDueRetries(_ context.Context, now time.Time, maxRetries, limit int) ([]domain.NotificationRecord, error) {
	out := r.filter(func(rec *domain.NotificationRecord) bool {
		return rec.Status == domain.NotificationStatusFailed &&
			rec.RetryAfter != nil && !rec.RetryAfter.After(now) &&
			rec.RetryCount < maxRetries
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRecords) GetByID(_ context.Context, id string) (*domain.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRecords) MarkSent(_ context.Context, id, providerMessageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status == domain.NotificationStatusSent {
		return ErrRecordNotFound
	}
	now := r.now()
	rec.Status = domain.NotificationStatusSent
	rec.ProviderMessageID = providerMessageID
	rec.ErrorKind, rec.ErrorMessage, rec.RetryAfter = "", "", nil
	rec.SentAt = &now
	return nil
}

func (r *fakeRecords) MarkFailed(_ context.Context, id string, update FailureUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status == domain.NotificationStatusSent {
		return ErrRecordNotFound
	}
	rec.Status = domain.NotificationStatusFailed
	rec.ErrorKind = update.Kind
	rec.ErrorMessage = update.Message
	rec.RetryAfter = update.RetryAfter
	if update.CountAttempt {
		rec.RetryCount++
	}
	return nil
}

func (r *fakeRecords) ContentStats(_ context.Context, contentID string) (RecordStats, error) {
	var stats RecordStats
	for _, rec := range r.filter(func(rec *domain.NotificationRecord) bool { return rec.ContentID == contentID }) {
		stats.Total++
		switch rec.Status {
		case domain.NotificationStatusPending:
			stats.Pending++
		case domain.NotificationStatusSent:
			stats.Sent++
		case domain.NotificationStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *fakeRecords) QueueStats(_ context.Context, maxRetries int) (QueueStats, error) {
	var stats QueueStats
	for _, rec := range r.filter(func(*domain.NotificationRecord) bool { return true }) {
		switch {
		case rec.Status == domain.NotificationStatusPending:
			stats.Pending++
		case rec.Status == domain.NotificationStatusSent:
			stats.Sent++
		case rec.IsTerminal(maxRetries):
			stats.Terminal++
		default:
			stats.RetryScheduled++
		}
	}
	return stats, nil
}

func (r *fakeRecords) filter(keep func(*domain.NotificationRecord) bool) []domain.NotificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NotificationRecord, 0)
	for _, id := range r.order {
		if rec := r.records[id]; keep(rec) {
			out = append(out, *rec)
		}
	}
	return out
}

func (r *fakeRecords) bySubscriber(subID string) []domain.NotificationRecord {
	return r.filter(func(rec *domain.NotificationRecord) bool { return rec.SubscriberID == subID })
}

type fakeIssuer struct {
	mu  sync.Mutex
	seq int
	err error
}

func (f *fakeIssuer) Issue(_ context.Context, subscriberID string, tokenType domain.TokenType) (unsubscribe.Issued, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return unsubscribe.Issued{}, f.err
	}
	f.seq++
	token := fmt.Sprintf("tok-%s-%d", subscriberID, f.seq)
	path := "/unsubscribe"
	if tokenType == domain.TokenTypePreferences {
		path = "/preferences"
	}
	return unsubscribe.Issued{
		Token: token,
		URL:   "https://example.com" + path + "?token=" + token,
		Type:  tokenType,
	}, nil
}

// fakeClient records sends and fails recipients listed in failures.
type fakeClient struct {
	mu       sync.Mutex
	sent     []delivery.Message
	calls    int
	failures map[string]*delivery.Error
	panicFor string
}

func newFakeClient() *fakeClient {
	return &fakeClient{failures: make(map[string]*delivery.Error)}
}

func (c *fakeClient) Send(_ context.Context, msg delivery.Message) delivery.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.panicFor != "" && msg.To == c.panicFor {
		panic("boom")
	}
	if err, ok := c.failures[msg.To]; ok {
		return delivery.Result{Err: err}
	}
	c.sent = append(c.sent, msg)
	return delivery.Success(fmt.Sprintf("msg-%d", len(c.sent)))
}

func (c *fakeClient) failFor(email string, err *delivery.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[email] = err
}

func (c *fakeClient) recover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = make(map[string]*delivery.Error)
	c.panicFor = ""
}

func (c *fakeClient) sentTo() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, m.To)
	}
	sort.Strings(out)
	return out
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func subscriber(id string, prefs domain.Preferences) domain.Subscriber {
	return domain.Subscriber{
		ID:          id,
		Email:       strings.ToLower(id) + "@example.com",
		Preferences: prefs,
		EmailStatus: domain.EmailStatusActive,
	}
}
