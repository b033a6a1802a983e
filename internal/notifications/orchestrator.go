// Package notifications fans new content out to subscribers and drives each
// notification record through delivery, retries and completion.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/content-notifier/internal/content"
	"github.com/bissquit/content-notifier/internal/delivery"
	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/eventlog"
	"github.com/bissquit/content-notifier/internal/pkg/ctxlog"
	"github.com/bissquit/content-notifier/internal/render"
	"github.com/bissquit/content-notifier/internal/resilience"
	"github.com/bissquit/content-notifier/internal/runlock"
	"github.com/bissquit/content-notifier/internal/subscribers"
	"github.com/bissquit/content-notifier/internal/unsubscribe"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LockName is the run lock shared by full runs and retry sweeps.
const LockName = "pipeline"

const maxErrorMessage = 1000

// ContentTracker is the change detector as used by the orchestrator.
type ContentTracker interface {
	Sync(ctx context.Context) (content.SyncResult, error)
	ListUnnotified(ctx context.Context) ([]domain.ContentItem, error)
	CountUnnotified(ctx context.Context) (int, error)
	MarkNotified(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.ContentItem, error)
}

// TokenIssuer mints unsubscribe tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, subscriberID string, tokenType domain.TokenType) (unsubscribe.Issued, error)
}

// MessageRenderer renders named email templates.
type MessageRenderer interface {
	Render(name string, vars render.Vars) (render.Message, error)
}

// Site describes the public site linked from notifications.
type Site struct {
	Name    string
	BaseURL string
}

// Config contains orchestrator configuration.
type Config struct {
	Worker  WorkerConfig
	Backoff resilience.Backoff
	Site    Site
	// Provider labels delivery metrics.
	Provider string
}

// Deps are the orchestrator collaborators.
type Deps struct {
	Content     ContentTracker
	Subscribers subscribers.Store
	Records     Repository
	Tokens      TokenIssuer
	Renderer    MessageRenderer
	Client      delivery.Client
	Breaker     *resilience.Breaker
	Events      *eventlog.Logger
	Locker      runlock.Locker
}

// RunSummary is the result of a pipeline run or retry sweep.
type RunSummary struct {
	Processed     int                 `json:"processed"`
	Sent          int                 `json:"sent"`
	Failed        int                 `json:"failed"`
	Retried       int                 `json:"retried"`
	Notified      int                 `json:"notified"`
	DurationMs    int64               `json:"duration_ms"`
	CorrelationID string              `json:"correlation_id"`
	StartedAt     time.Time           `json:"started_at"`
	Sync          *content.SyncResult `json:"sync,omitempty"`
}

func (s *RunSummary) addDelivery(d DeliveryStats) {
	s.Processed += d.Attempted
	s.Sent += d.Sent
	s.Failed += d.Failed
}

func (s RunSummary) meta() map[string]any {
	return map[string]any{
		"processed": s.Processed,
		"sent":      s.Sent,
		"failed":    s.Failed,
		"retried":   s.Retried,
		"notified":  s.Notified,
	}
}

// ContentResult is the outcome of notifying one content item.
type ContentResult struct {
	ContentID string        `json:"content_id"`
	Created   int           `json:"created"`
	Delivery  DeliveryStats `json:"delivery"`
	Notified  bool          `json:"notified"`
}

func (r ContentResult) meta() map[string]any {
	return map[string]any{
		"created":  r.Created,
		"sent":     r.Delivery.Sent,
		"failed":   r.Delivery.Failed,
		"notified": r.Notified,
	}
}

// Status is the aggregated health view of the pipeline.
type Status struct {
	Queue          QueueStats              `json:"queue"`
	Breaker        resilience.BreakerState `json:"breaker"`
	Unnotified     int                     `json:"unnotified"`
	LastRun        *RunSummary             `json:"last_run,omitempty"`
	RecentFailures []eventlog.Event        `json:"recent_failures"`
}

// Orchestrator runs the notification pipeline.
type Orchestrator struct {
	config      Config
	content     ContentTracker
	subscribers subscribers.Store
	records     Repository
	tokens      TokenIssuer
	renderer    MessageRenderer
	client      delivery.Client
	breaker     *resilience.Breaker
	events      *eventlog.Logger
	locker      runlock.Locker
	pool        *workerPool
	now         func() time.Time

	mu      sync.Mutex
	lastRun *RunSummary
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(config Config, deps Deps) *Orchestrator {
	config.Worker = config.Worker.normalize()
	if config.Backoff.Base <= 0 {
		config.Backoff = resilience.NewBackoff(resilience.DefaultBaseDelay)
	}
	if config.Provider == "" {
		config.Provider = "unknown"
	}
	if deps.Breaker == nil {
		deps.Breaker = resilience.NewBreaker(resilience.DefaultBreakerConfig())
	}
	if deps.Events == nil {
		deps.Events = eventlog.NewLogger(nil, slog.Default())
	}
	if deps.Locker == nil {
		deps.Locker = runlock.NewLocal()
	}

	return &Orchestrator{
		config:      config,
		content:     deps.Content,
		subscribers: deps.Subscribers,
		records:     deps.Records,
		tokens:      deps.Tokens,
		renderer:    deps.Renderer,
		client:      deps.Client,
		breaker:     deps.Breaker,
		events:      deps.Events,
		locker:      deps.Locker,
		pool:        newWorkerPool(config.Worker),
		now:         time.Now,
	}
}

// Breaker returns the circuit breaker guarding delivery.
func (o *Orchestrator) Breaker() *resilience.Breaker {
	return o.breaker
}

// Run syncs content, notifies every unnotified item and sweeps due retries.
// It returns runlock.ErrRunInProgress when another run holds the lock.
func (o *Orchestrator) Run(ctx context.Context) (RunSummary, error) {
	return o.locked(ctx, "pipeline.run", o.run)
}

// RetrySweep re-attempts failed records whose retry time has come.
func (o *Orchestrator) RetrySweep(ctx context.Context) (RunSummary, error) {
	return o.locked(ctx, "pipeline.retry", func(ctx context.Context, summary *RunSummary) error {
		return o.sweep(ctx, summary)
	})
}

func (o *Orchestrator) locked(ctx context.Context, operation string, fn func(context.Context, *RunSummary) error) (RunSummary, error) {
	release, err := o.locker.TryLock(ctx, LockName)
	if err != nil {
		return RunSummary{}, err
	}
	defer release()

	start := o.now()
	ctx, span := o.events.Start(ctx, operation, nil)
	ctx = ctxlog.With(ctx, "correlation_id", span.CorrelationID)
	summary := RunSummary{CorrelationID: span.CorrelationID, StartedAt: start.UTC()}

	err = fn(ctx, &summary)
	duration := o.now().Sub(start)
	summary.DurationMs = duration.Milliseconds()
	recordRun(operation, err, duration)

	if err != nil {
		span.Fail(context.WithoutCancel(ctx), err, summary.meta())
		ctxlog.FromContext(ctx).Error("pipeline run failed",
			"operation", operation,
			"error", err,
		)
		return summary, err
	}

	span.Complete(ctx, summary.meta())
	o.setLastRun(summary)
	o.refreshGauges(ctx)

	ctxlog.FromContext(ctx).Info("pipeline run completed",
		"operation", operation,
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"retried", summary.Retried,
		"duration", duration,
	)

	return summary, nil
}

func (o *Orchestrator) run(ctx context.Context, summary *RunSummary) error {
	synced, err := o.content.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync content: %w", err)
	}
	summary.Sync = &synced

	items, err := o.content.ListUnnotified(ctx)
	if err != nil {
		return fmt.Errorf("list unnotified content: %w", err)
	}

	for _, item := range items {
		res, err := o.NotifyContent(ctx, item)
		summary.addDelivery(res.Delivery)
		if res.Notified {
			summary.Notified++
		}
		if err != nil {
			return fmt.Errorf("notify content %s: %w", item.Slug, err)
		}
	}

	return o.sweep(ctx, summary)
}

// NotifyContent fans an item out to its category subscribers and delivers
// every pending record. The item is marked notified once all of its records
// are sent.
func (o *Orchestrator) NotifyContent(ctx context.Context, item domain.ContentItem) (ContentResult, error) {
	ctx, span := o.events.Start(ctx, "content.notify", map[string]any{
		"content_id":   item.ID,
		"slug":         item.Slug,
		"content_type": item.ContentType,
	})

	res, err := o.notifyContent(ctx, item)
	if err != nil {
		span.Fail(context.WithoutCancel(ctx), err, res.meta())
		return res, err
	}
	span.Complete(ctx, res.meta())
	return res, nil
}

func (o *Orchestrator) notifyContent(ctx context.Context, item domain.ContentItem) (ContentResult, error) {
	res := ContentResult{ContentID: item.ID}
	category := item.ContentType.Category()

	subs, err := o.subscribers.ListByCategory(ctx, category)
	if err != nil {
		return res, fmt.Errorf("list subscribers: %w", err)
	}

	ids := make([]string, 0, len(subs))
	for i := range subs {
		if subs[i].Wants(category) {
			ids = append(ids, subs[i].ID)
		}
	}

	if len(ids) > 0 {
		created, err := o.records.CreatePending(ctx, item, ids)
		if err != nil {
			return res, fmt.Errorf("create notification records: %w", err)
		}
		res.Created = created
	}

	pending, err := o.records.ListPendingByContent(ctx, item.ID)
	if err != nil {
		return res, fmt.Errorf("list pending notifications: %w", err)
	}

	ctxlog.FromContext(ctx).Info("notifying content",
		"content_id", item.ID,
		"slug", item.Slug,
		"eligible", len(ids),
		"created", res.Created,
		"pending", len(pending),
	)

	items := newContentCache(o.content, item)
	stats, err := o.pool.drain(ctx, pending, func(ctx context.Context, rec domain.NotificationRecord) outcome {
		return o.deliver(ctx, rec, items)
	})
	res.Delivery = stats
	if err != nil {
		return res, err
	}

	res.Notified, err = o.completeIfSent(ctx, item.ID)
	return res, err
}

func (o *Orchestrator) sweep(ctx context.Context, summary *RunSummary) error {
	due, err := o.records.ListDueRetries(ctx, o.now(), o.config.Worker.MaxRetries, o.config.Worker.SweepLimit)
	if err != nil {
		return fmt.Errorf("list due retries: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	ctxlog.FromContext(ctx).Info("retrying failed notifications", "count", len(due))

	items := newContentCache(o.content)
	stats, err := o.pool.drain(ctx, due, func(ctx context.Context, rec domain.NotificationRecord) outcome {
		return o.deliver(ctx, rec, items)
	})
	summary.addDelivery(stats)
	summary.Retried += stats.Attempted
	if err != nil {
		return err
	}

	touched := make(map[string]bool)
	for _, rec := range due {
		if touched[rec.ContentID] {
			continue
		}
		touched[rec.ContentID] = true
		notified, err := o.completeIfSent(ctx, rec.ContentID)
		if err != nil {
			return err
		}
		if notified {
			summary.Notified++
		}
	}

	return nil
}

// completeIfSent marks the item notified when no record is pending or failed.
func (o *Orchestrator) completeIfSent(ctx context.Context, contentID string) (bool, error) {
	stats, err := o.records.ContentStats(ctx, contentID)
	if err != nil {
		return false, fmt.Errorf("content notification stats: %w", err)
	}
	if !stats.AllSent() {
		return false, nil
	}
	if err := o.content.MarkNotified(ctx, contentID); err != nil {
		return false, fmt.Errorf("mark content notified: %w", err)
	}
	ctxlog.FromContext(ctx).Info("content fully notified", "content_id", contentID, "sent", stats.Sent)
	return true, nil
}

// deliver runs one record through the send path. Every failure, including a
// panic, ends as a failed record; it never propagates to the batch.
func (o *Orchestrator) deliver(ctx context.Context, rec domain.NotificationRecord, items *contentCache) (result outcome) {
	start := o.now()
	ctx, span := o.events.Start(ctx, "notification.send", map[string]any{
		"record_id":     rec.ID,
		"subscriber_id": rec.SubscriberID,
		"content_id":    rec.ContentID,
		"retry_count":   rec.RetryCount,
	})

	defer func() {
		if p := recover(); p != nil {
			ctxlog.FromContext(ctx).Error("notification delivery panicked", "record_id", rec.ID, "panic", p)
			result = o.fail(ctx, span, rec, resilience.FailureOf(resilience.KindGeneric), fmt.Errorf("delivery panicked: %v", p))
		}
	}()

	item, err := items.get(ctx, rec.ContentID)
	if err != nil {
		f := resilience.FailureOf(resilience.KindGeneric)
		if errors.Is(err, content.ErrContentNotFound) {
			f.Retriable = false
			err = fmt.Errorf("%w: %s", ErrContentMissing, rec.ContentID)
		}
		return o.fail(ctx, span, rec, f, err)
	}

	sub, err := o.subscribers.GetByID(ctx, rec.SubscriberID)
	switch {
	case errors.Is(err, subscribers.ErrSubscriberNotFound):
		return o.fail(ctx, span, rec, resilience.FailureOf(resilience.KindMissingRecipient), err)
	case err != nil:
		return o.fail(ctx, span, rec, resilience.FailureOf(resilience.KindGeneric), fmt.Errorf("get subscriber: %w", err))
	case sub.Email == "":
		return o.fail(ctx, span, rec, resilience.FailureOf(resilience.KindMissingRecipient), errors.New("subscriber has no email address"))
	case !sub.Wants(item.ContentType.Category()):
		return o.fail(ctx, span, rec, resilience.FailureOf(resilience.KindOptedOut), errors.New("subscriber opted out"))
	}

	if err := o.breaker.Allow(); err != nil {
		return o.rejectOpen(ctx, span, rec, err)
	}

	msg, err := o.compose(ctx, *item, sub)
	if err != nil {
		return o.fail(ctx, span, rec, resilience.Classify(err), err)
	}

	res := o.client.Send(ctx, msg)
	recordNotificationDuration(o.config.Provider, o.now().Sub(start))

	if res.OK {
		o.breaker.RecordSuccess()
		// The email is out; record it even if the run was cancelled meanwhile.
		if err := o.records.MarkSent(context.WithoutCancel(ctx), rec.ID, res.ProviderID); err != nil {
			ctxlog.FromContext(ctx).Error("failed to mark as sent", "record_id", rec.ID, "error", err)
		}
		recordNotificationSent(o.config.Provider, "sent")
		span.Complete(ctx, map[string]any{"provider_message_id": res.ProviderID})
		return outcomeSent
	}

	var sendErr error = errors.New("delivery failed")
	if res.Err != nil {
		sendErr = res.Err
	}
	f := resilience.Classify(sendErr)
	if f.Kind == resilience.KindAborted || ctx.Err() != nil {
		return o.abort(ctx, span, rec, scrub(sendErr, sub.Email))
	}
	if f.Retriable {
		o.breaker.RecordFailure()
	}
	return o.fail(ctx, span, rec, f, scrub(sendErr, sub.Email))
}

// abort leaves the record as it is. The run stopped before the provider
// answered, so neither the retry count nor the breaker changes; the record
// stays pending or due and the next run picks it up.
func (o *Orchestrator) abort(ctx context.Context, span *eventlog.Span, rec domain.NotificationRecord, err error) outcome {
	ctxlog.FromContext(ctx).Info("send aborted", "record_id", rec.ID, "subscriber_id", rec.SubscriberID, "error", err)
	recordNotificationSent(o.config.Provider, strings.ToLower(string(resilience.KindAborted)))
	span.Fail(context.WithoutCancel(ctx), err, map[string]any{
		"error_kind": string(resilience.KindAborted),
		"will_retry": true,
	})
	return outcomeAborted
}

// rejectOpen records a fail-fast rejection by the breaker. The attempt does
// not count toward the retry cap and becomes due when the breaker reopens.
func (o *Orchestrator) rejectOpen(ctx context.Context, span *eventlog.Span, rec domain.NotificationRecord, err error) outcome {
	update := FailureUpdate{
		Kind:    string(resilience.KindCircuitOpen),
		Message: err.Error(),
	}
	var coe *resilience.CircuitOpenError
	if errors.As(err, &coe) {
		retryAt := coe.RetryAt
		update.RetryAfter = &retryAt
	} else {
		retryAt := o.now().Add(resilience.DefaultBreakerConfig().Cooldown)
		update.RetryAfter = &retryAt
	}
	return o.markFailed(ctx, span, rec, update, err)
}

func (o *Orchestrator) fail(ctx context.Context, span *eventlog.Span, rec domain.NotificationRecord, f resilience.Failure, err error) outcome {
	update := FailureUpdate{
		Kind:         string(f.Kind),
		Message:      err.Error(),
		CountAttempt: true,
	}
	if f.Retriable && rec.RetryCount+1 < o.config.Worker.MaxRetries {
		update.RetryAfter = o.config.Backoff.NextRetryAt(o.now(), f, rec.RetryCount)
	}
	return o.markFailed(ctx, span, rec, update, err)
}

func (o *Orchestrator) markFailed(ctx context.Context, span *eventlog.Span, rec domain.NotificationRecord, update FailureUpdate, err error) outcome {
	if ctx.Err() != nil {
		return o.abort(ctx, span, rec, err)
	}
	if len(update.Message) > maxErrorMessage {
		update.Message = update.Message[:maxErrorMessage]
	}

	if markErr := o.records.MarkFailed(ctx, rec.ID, update); markErr != nil {
		ctxlog.FromContext(ctx).Error("failed to mark as failed", "record_id", rec.ID, "error", markErr)
	}

	recordNotificationSent(o.config.Provider, strings.ToLower(update.Kind))

	attrs := []any{
		"record_id", rec.ID,
		"subscriber_id", rec.SubscriberID,
		"kind", update.Kind,
		"attempt", rec.RetryCount + 1,
		"error", err,
	}
	if update.RetryAfter != nil {
		ctxlog.FromContext(ctx).Warn("send failed, retry scheduled", append(attrs, "retry_after", *update.RetryAfter)...)
	} else {
		ctxlog.FromContext(ctx).Warn("send failed permanently", attrs...)
	}

	span.Fail(ctx, err, map[string]any{
		"error_kind": update.Kind,
		"will_retry": update.RetryAfter != nil,
	})
	return outcomeFailed
}

// compose issues the subscriber's unsubscribe tokens and renders the email.
// Errors are *resilience.TransportError so the caller classifies them uniformly.
func (o *Orchestrator) compose(ctx context.Context, item domain.ContentItem, sub *domain.Subscriber) (delivery.Message, error) {
	oneClick, err := o.tokens.Issue(ctx, sub.ID, domain.TokenTypeOneClick)
	if err != nil {
		return delivery.Message{}, &resilience.TransportError{
			Failure: resilience.FailureOf(resilience.KindGeneric),
			Err:     fmt.Errorf("issue unsubscribe link: %w", err),
		}
	}
	prefs, err := o.tokens.Issue(ctx, sub.ID, domain.TokenTypePreferences)
	if err != nil {
		return delivery.Message{}, &resilience.TransportError{
			Failure: resilience.FailureOf(resilience.KindGeneric),
			Err:     fmt.Errorf("issue preferences link: %w", err),
		}
	}

	name := TemplateFor(item.ContentType)
	rendered, err := o.renderer.Render(name, o.vars(item, oneClick.URL, prefs.URL))
	if err != nil {
		return delivery.Message{}, &resilience.TransportError{
			Failure: resilience.FailureOf(resilience.KindRender),
			Err:     err,
		}
	}

	return delivery.Message{
		To:      sub.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		Headers: unsubscribe.HeadersFor(oneClick),
		Tag:     name,
	}, nil
}

func (o *Orchestrator) vars(item domain.ContentItem, unsubscribeURL, preferencesURL string) render.Vars {
	return render.Vars{
		"siteName":         o.config.Site.Name,
		"siteUrl":          o.config.Site.BaseURL,
		"title":            item.Title,
		"excerpt":          item.Excerpt,
		"contentUrl":       ContentURL(o.config.Site.BaseURL, item),
		"contentTypeLabel": ContentTypeLabel(item.ContentType),
		"publishDate":      item.PublishDate,
		"tags":             item.Tags,
		"unsubscribeUrl":   unsubscribeURL,
		"preferencesUrl":   preferencesURL,
	}
}

// TemplateFor returns the email template used for a content type.
func TemplateFor(t domain.ContentType) string {
	if t == domain.ContentTypeThought {
		return "new_thought"
	}
	return "new_blog_post"
}

// ContentURL returns the public URL of an item.
func ContentURL(baseURL string, item domain.ContentItem) string {
	section := "blog"
	if item.ContentType == domain.ContentTypeThought {
		section = "thoughts"
	}
	return strings.TrimRight(baseURL, "/") + "/" + section + "/" + url.PathEscape(item.Slug)
}

var titleCaser = cases.Title(language.English)

// ContentTypeLabel returns the display label of a content type.
func ContentTypeLabel(t domain.ContentType) string {
	if t == domain.ContentTypeThought {
		return titleCaser.String("thought")
	}
	return titleCaser.String("blog post")
}

// Status reports queue, breaker and last run state.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	queue, err := o.records.QueueStats(ctx, o.config.Worker.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	unnotified, err := o.content.CountUnnotified(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unnotified content: %w", err)
	}

	failures, err := o.events.RecentFailures(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	if failures == nil {
		failures = []eventlog.Event{}
	}

	return &Status{
		Queue:          queue,
		Breaker:        o.breaker.Snapshot(),
		Unnotified:     unnotified,
		LastRun:        o.LastRun(),
		RecentFailures: failures,
	}, nil
}

// Trail returns the event trail of a run.
func (o *Orchestrator) Trail(ctx context.Context, correlationID string) ([]eventlog.Event, error) {
	return o.events.Trail(ctx, correlationID)
}

// RecentFailures returns the most recent failed pipeline events.
func (o *Orchestrator) RecentFailures(ctx context.Context, limit int) ([]eventlog.Event, error) {
	return o.events.RecentFailures(ctx, limit)
}

// LastRun returns the summary of the last successful run in this process.
func (o *Orchestrator) LastRun() *RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastRun == nil {
		return nil
	}
	s := *o.lastRun
	return &s
}

func (o *Orchestrator) setLastRun(s RunSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastRun = &s
}

// CollectMetrics refreshes queue, content and breaker gauges.
func (o *Orchestrator) CollectMetrics(ctx context.Context) error {
	queue, err := o.records.QueueStats(ctx, o.config.Worker.MaxRetries)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	RecordQueueStats(queue)

	unnotified, err := o.content.CountUnnotified(ctx)
	if err != nil {
		return fmt.Errorf("count unnotified content: %w", err)
	}
	RecordUnnotified(unnotified)

	resilience.RecordBreakerState(o.breaker.Snapshot())
	return nil
}

func (o *Orchestrator) refreshGauges(ctx context.Context) {
	if err := o.CollectMetrics(ctx); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to refresh pipeline metrics", "error", err)
	}
}

// scrub masks the recipient address in provider error text.
func scrub(err error, email string) error {
	if email == "" || !strings.Contains(err.Error(), email) {
		return err
	}
	return &scrubbedError{msg: strings.ReplaceAll(err.Error(), email, delivery.MaskEmail(email)), err: err}
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }

func (e *scrubbedError) Unwrap() error { return e.err }

// contentCache memoizes content lookups for one drain.
type contentCache struct {
	tracker ContentTracker
	mu      sync.Mutex
	items   map[string]*domain.ContentItem
}

func newContentCache(tracker ContentTracker, seed ...domain.ContentItem) *contentCache {
	c := &contentCache{tracker: tracker, items: make(map[string]*domain.ContentItem, len(seed))}
	for i := range seed {
		item := seed[i]
		c.items[item.ID] = &item
	}
	return c
}

func (c *contentCache) get(ctx context.Context, id string) (*domain.ContentItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[id]; ok {
		return item, nil
	}
	item, err := c.tracker.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.items[id] = item
	return item, nil
}
