package unsubscribe

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const invalidLinkMessage = "invalid or expired link"

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrTokenInvalid, Status: http.StatusBadRequest, Message: invalidLinkMessage},
}

// Handler handles HTTP requests for unsubscribe links.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new unsubscribe handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers the link endpoints served at the site root.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/unsubscribe", h.Show)
	r.Post("/unsubscribe", h.OneClick)
	r.Get("/preferences", h.Show)
}

// RegisterAPIRoutes registers the JSON API endpoint.
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Post("/unsubscribe", h.Unsubscribe)
}

// UnsubscribeRequest represents request body for POST /api/v1/unsubscribe.
type UnsubscribeRequest struct {
	Token       string             `json:"token" validate:"required"`
	Preferences *PreferencesUpdate `json:"preferences,omitempty"`
}

// LinkStatus is the response for a valid link.
type LinkStatus struct {
	Valid        bool               `json:"valid"`
	TokenType    domain.TokenType   `json:"token_type"`
	Preferences  domain.Preferences `json:"preferences"`
	GlobalOptOut bool               `json:"global_opt_out"`
}

// UnsubscribeResult is the response after a successful change.
type UnsubscribeResult struct {
	Unsubscribed bool   `json:"unsubscribed"`
	Mode         string `json:"mode"`
}

// Show handles GET /unsubscribe?token= and GET /preferences?token=.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	tok, sub, err := h.service.Subscriber(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, LinkStatus{
		Valid:        true,
		TokenType:    tok.TokenType,
		Preferences:  sub.Preferences,
		GlobalOptOut: sub.GlobalOptOut,
	})
}

// OneClick handles POST /unsubscribe?token= (RFC 8058).
func (h *Handler) OneClick(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		// Some clients post the token as a form field.
		_ = r.ParseForm()
		token = r.PostForm.Get("token")
	}

	if _, err := h.service.Consume(r.Context(), token, nil); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, UnsubscribeResult{Unsubscribed: true, Mode: "full"})
}

// Unsubscribe handles POST /api/v1/unsubscribe.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.Error(w, http.StatusBadRequest, invalidLinkMessage)
		return
	}

	if _, err := h.service.Consume(r.Context(), req.Token, req.Preferences); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	result := UnsubscribeResult{Unsubscribed: true, Mode: "full"}
	if req.Preferences != nil {
		result.Mode = "partial"
	}
	httputil.Success(w, http.StatusOK, result)
}
