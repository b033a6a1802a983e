package notifications

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bissquit/content-notifier/internal/eventlog"
	"github.com/bissquit/content-notifier/internal/pkg/ctxlog"
	"github.com/bissquit/content-notifier/internal/pkg/httputil"
	"github.com/bissquit/content-notifier/internal/runlock"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxFailuresLimit = 200

// Pipeline is the orchestrator surface exposed over HTTP.
type Pipeline interface {
	Run(ctx context.Context) (RunSummary, error)
	RetrySweep(ctx context.Context) (RunSummary, error)
	Status(ctx context.Context) (*Status, error)
	Trail(ctx context.Context, correlationID string) ([]eventlog.Event, error)
	RecentFailures(ctx context.Context, limit int) ([]eventlog.Event, error)
}

var runErrorMappings = []httputil.ErrorMapping{
	{Error: runlock.ErrRunInProgress, Status: http.StatusConflict, Message: "pipeline run already in progress"},
}

// Handler handles HTTP requests for the pipeline.
type Handler struct {
	pipeline  Pipeline
	validator *validator.Validate
}

// NewHandler creates a new pipeline handler.
func NewHandler(pipeline Pipeline) *Handler {
	return &Handler{
		pipeline:  pipeline,
		validator: validator.New(),
	}
}

// RegisterTriggerRoutes registers run triggers (require the cron secret).
func (h *Handler) RegisterTriggerRoutes(r chi.Router) {
	r.Post("/pipeline/run", h.Run)
	r.Post("/pipeline/retry", h.Retry)
}

// RegisterAdminRoutes registers diagnostics (require admin auth).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/pipeline/status", h.Status)
	r.Get("/pipeline/events/{correlationId}", h.Events)
	r.Get("/pipeline/failures", h.Failures)
}

// EventsRequest represents path parameters for the event trail.
type EventsRequest struct {
	CorrelationID string `validate:"required,uuid"`
}

// Run handles POST /pipeline/run.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pipeline.Run(r.Context())
	if err != nil {
		h.runError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, summary)
}

// Retry handles POST /pipeline/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pipeline.RetrySweep(r.Context())
	if err != nil {
		h.runError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, summary)
}

// runError keeps internals out of trigger responses.
func (h *Handler) runError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, m := range runErrorMappings {
		if errors.Is(err, m.Error) {
			httputil.Error(w, m.Status, m.Message)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("pipeline run failed", "error", err)
	httputil.Error(w, http.StatusInternalServerError, "pipeline run failed")
}

// Status handles GET /pipeline/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.pipeline.Status(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, status)
}

// Events handles GET /pipeline/events/{correlationId}.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	req := EventsRequest{CorrelationID: chi.URLParam(r, "correlationId")}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	events, err := h.pipeline.Trail(r.Context(), req.CorrelationID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, events)
}

// Failures handles GET /pipeline/failures?limit=.
func (h *Handler) Failures(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxFailuresLimit {
			httputil.Error(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	events, err := h.pipeline.RecentFailures(r.Context(), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, events)
}
