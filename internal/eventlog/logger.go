package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const persistTimeout = 5 * time.Second

type ctxKey struct{}

type spanRef struct {
	correlationID string
	spanID        string
}

// CorrelationID returns the correlation id carried by ctx, if any.
func CorrelationID(ctx context.Context) string {
	if ref, ok := ctx.Value(ctxKey{}).(spanRef); ok {
		return ref.correlationID
	}
	return ""
}

// WithCorrelationID starts a new trace in ctx with the given id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, spanRef{correlationID: id})
}

// Logger records spans. Persistence errors are logged and never returned.
type Logger struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger creates an event logger. A nil repo only logs.
func NewLogger(repo Repository, logger *slog.Logger) *Logger {
	return &Logger{repo: repo, logger: logger, now: time.Now}
}

// Span is an in-flight operation.
type Span struct {
	l             *Logger
	ID            string
	CorrelationID string
	ParentID      string
	Operation     string
	start         time.Time
}

// Start opens a span. Without a correlation id in ctx a new trace begins;
// otherwise the span is a child of the span in ctx.
func (l *Logger) Start(ctx context.Context, operation string, meta map[string]any) (context.Context, *Span) {
	parent, _ := ctx.Value(ctxKey{}).(spanRef)

	span := &Span{
		l:             l,
		ID:            uuid.NewString(),
		CorrelationID: parent.correlationID,
		ParentID:      parent.spanID,
		Operation:     operation,
		start:         l.now(),
	}
	if span.CorrelationID == "" {
		span.CorrelationID = uuid.NewString()
	}

	l.record(ctx, span, StatusStarted, nil, meta, "")

	return context.WithValue(ctx, ctxKey{}, spanRef{correlationID: span.CorrelationID, spanID: span.ID}), span
}

// Complete records successful completion.
func (s *Span) Complete(ctx context.Context, meta map[string]any) {
	d := s.l.now().Sub(s.start)
	s.l.record(ctx, s, StatusCompleted, &d, meta, "")
	operationDuration.WithLabelValues(s.Operation, string(StatusCompleted)).Observe(d.Seconds())
}

// Fail records a failure.
func (s *Span) Fail(ctx context.Context, err error, meta map[string]any) {
	d := s.l.now().Sub(s.start)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.l.record(ctx, s, StatusFailed, &d, meta, msg)
	operationDuration.WithLabelValues(s.Operation, string(StatusFailed)).Observe(d.Seconds())
}

func (l *Logger) record(ctx context.Context, s *Span, status Status, d *time.Duration, meta map[string]any, errMsg string) {
	event := &Event{
		ID:            uuid.NewString(),
		CorrelationID: s.CorrelationID,
		SpanID:        s.ID,
		ParentID:      s.ParentID,
		Operation:     s.Operation,
		Status:        status,
		Metadata:      Redact(meta),
		ErrorMessage:  errMsg,
		CreatedAt:     l.now().UTC(),
	}
	if d != nil {
		ms := d.Milliseconds()
		event.DurationMs = &ms
	}

	level := slog.LevelDebug
	if status == StatusFailed {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "pipeline event",
		"operation", event.Operation,
		"status", event.Status,
		"correlation_id", event.CorrelationID,
		"span_id", event.SpanID,
		"error", errMsg,
	)

	if l.repo == nil {
		return
	}

	// The event still has to land when the run itself was cancelled.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := l.repo.Insert(pctx, event); err != nil {
		persistFailures.Inc()
		l.logger.Warn("failed to persist pipeline event",
			"operation", event.Operation,
			"correlation_id", event.CorrelationID,
			"error", err,
		)
	}
}

// Trail returns every event of a correlation id in order.
func (l *Logger) Trail(ctx context.Context, correlationID string) ([]Event, error) {
	if l.repo == nil {
		return []Event{}, nil
	}
	events, err := l.repo.ListByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// RecentFailures returns the newest failed events.
func (l *Logger) RecentFailures(ctx context.Context, limit int) ([]Event, error) {
	if l.repo == nil {
		return []Event{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	events, err := l.repo.RecentFailures(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	return events, nil
}

// PurgeOlderThan deletes events older than age.
func (l *Logger) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if l.repo == nil {
		return 0, nil
	}
	n, err := l.repo.DeleteOlderThan(ctx, l.now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return n, nil
}
