package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wisio/supportdesk/internal/config"
	"github.com/wisio/supportdesk/internal/dialogue"
	"github.com/wisio/supportdesk/internal/domain"
	"github.com/wisio/supportdesk/internal/identity"
)

// SupportHandler handles the chat widget endpoints.
type SupportHandler struct {
	*Handler
	registry    *dialogue.Registry
	rateLimiter *RateLimiter
	cfg         *config.Config
}

// NewSupportHandler creates a support widget handler.
func NewSupportHandler(base *Handler, registry *dialogue.Registry, cfg *config.Config) *SupportHandler {
	return &SupportHandler{
		Handler:     base,
		registry:    registry,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		cfg:         cfg,
	}
}

// RegisterRoutes registers widget routes.
func (h *SupportHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/support", func(r chi.Router) {
		r.Post("/open", h.HandleOpen)
		r.Post("/option", h.HandleOption)
		r.Post("/message", h.HandleMessage)
		r.Get("/transcript", h.HandleTranscript)
		r.Post("/restart", h.HandleRestart)
		r.Post("/close", h.HandleClose)
		r.Get("/archives/{archiveID}", h.HandleGetArchive)
	})
	r.Get("/api/tickets/{ticketID}", h.HandleGetTicket)
	r.Get("/api/me", h.HandleMe)
	r.Get("/api/config", h.HandleConfig)
}

// conversationView is the poll-friendly snapshot the widget renders: the
// whole transcript plus a descriptor of the one input currently accepted.
type conversationView struct {
	Step     string           `json:"step"`
	Role     string           `json:"role,omitempty"`
	Messages []domain.Message `json:"messages"`
	Status   string           `json:"status,omitempty"`
	Input    domain.Pending   `json:"input"`
	Ticket   *ticketView      `json:"ticket,omitempty"`
}

// ticketView exposes the ticket reference with its origin, so the widget can
// label provisional references distinctly from server-issued tickets.
type ticketView struct {
	ID          string `json:"id"`
	Origin      string `json:"origin"`
	Provisional bool   `json:"provisional"`
}

func viewOf(session *domain.Session) conversationView {
	view := conversationView{
		Step:     string(session.Step),
		Role:     string(session.UserRole),
		Messages: session.History,
		Status:   session.Status,
		Input:    session.Pending,
	}
	if session.Ticket != nil {
		view.Ticket = &ticketView{
			ID:          session.Ticket.ID,
			Origin:      string(session.Ticket.Origin),
			Provisional: session.Ticket.IsProvisional(),
		}
	}
	return view
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

func (h *SupportHandler) identify(w http.ResponseWriter, r *http.Request) (userID, key string, ok bool) {
	userID = identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", "", false
	}
	// Rate-limit by userID only so rotating session IDs buys nothing.
	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return "", "", false
	}
	return userID, sessionKey(userID, identity.SessionIDFromContext(r.Context())), true
}

// HandleOpen handles POST /api/support/open. Opening an already-open session
// returns its current state, so a re-opened widget resumes the conversation.
func (h *SupportHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	userID, key, ok := h.identify(w, r)
	if !ok {
		return
	}

	handle := h.registry.Acquire(key, userID)
	var view conversationView
	_ = handle.Do(func(e *dialogue.Engine) error {
		view = viewOf(e.Session())
		return nil
	})
	JSON(w, http.StatusOK, view)
}

type optionRequest struct {
	Index int `json:"index"`
}

// HandleOption handles POST /api/support/option.
func (h *SupportHandler) HandleOption(w http.ResponseWriter, r *http.Request) {
	_, key, ok := h.identify(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	var req optionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle := h.registry.Get(key)
	if handle == nil {
		Error(w, http.StatusNotFound, "no open support session")
		return
	}

	var view conversationView
	err := handle.Do(func(e *dialogue.Engine) error {
		if submitErr := e.SubmitOption(r.Context(), req.Index); submitErr != nil {
			return submitErr
		}
		view = viewOf(e.Session())
		return nil
	})
	if err != nil {
		h.turnError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

type messageRequest struct {
	Text string `json:"text"`
}

// HandleMessage handles POST /api/support/message.
func (h *SupportHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	_, key, ok := h.identify(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	handle := h.registry.Get(key)
	if handle == nil {
		Error(w, http.StatusNotFound, "no open support session")
		return
	}

	var view conversationView
	err := handle.Do(func(e *dialogue.Engine) error {
		if submitErr := e.SubmitFreeText(r.Context(), req.Text); submitErr != nil {
			return submitErr
		}
		view = viewOf(e.Session())
		return nil
	})
	if err != nil {
		h.turnError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// HandleTranscript handles GET /api/support/transcript, the 5-second poll.
func (h *SupportHandler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	_, key, ok := h.identify(w, r)
	if !ok {
		return
	}

	handle := h.registry.Get(key)
	if handle == nil {
		Error(w, http.StatusNotFound, "no open support session")
		return
	}

	var view conversationView
	_ = handle.Do(func(e *dialogue.Engine) error {
		view = viewOf(e.Session())
		return nil
	})
	JSON(w, http.StatusOK, view)
}

// HandleRestart handles POST /api/support/restart.
func (h *SupportHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	userID, key, ok := h.identify(w, r)
	if !ok {
		return
	}

	// Restart discards any previous session and starts a fresh one.
	h.registry.CloseSession(r.Context(), key, "restarted")
	handle := h.registry.Acquire(key, userID)
	var view conversationView
	_ = handle.Do(func(e *dialogue.Engine) error {
		view = viewOf(e.Session())
		return nil
	})
	JSON(w, http.StatusOK, view)
}

// HandleClose handles POST /api/support/close.
func (h *SupportHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	_, key, ok := h.identify(w, r)
	if !ok {
		return
	}

	closed := h.registry.CloseSession(r.Context(), key, "closed")
	JSON(w, http.StatusOK, map[string]bool{"closed": closed})
}

// HandleGetTicket handles GET /api/tickets/{ticketID}. Tickets are only
// visible to the user who opened them.
func (h *SupportHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.repo.GetTicket(r.Context(), ticketID)
	if err != nil {
		slog.Error("failed to load ticket", "ticket_id", ticketID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	if ticket == nil || ticket.UserID != userID {
		Error(w, http.StatusNotFound, "ticket not found")
		return
	}
	JSON(w, http.StatusOK, ticket)
}

// HandleGetArchive handles GET /api/support/archives/{archiveID}. Archives
// are only visible to the user whose conversation they record.
func (h *SupportHandler) HandleGetArchive(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	archiveID := chi.URLParam(r, "archiveID")
	archive, err := h.repo.GetArchive(r.Context(), archiveID)
	if err != nil {
		slog.Error("failed to load archive", "archive_id", archiveID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load archive")
		return
	}
	if archive == nil || archive.UserID != userID {
		Error(w, http.StatusNotFound, "archive not found")
		return
	}
	JSON(w, http.StatusOK, archive)
}

// HandleMe returns the current user's information.
func (h *SupportHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	JSON(w, http.StatusOK, user)
}

// HandleConfig returns the server configuration for the widget.
func (h *SupportHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"fallback_enabled":   h.cfg.GenerationURL != "",
		"evaluation_enabled": h.cfg.EvaluationURL != "",
		"support_phone":      h.cfg.SupportPhone,
	})
}

// turnError maps engine errors to HTTP status codes.
func (h *SupportHandler) turnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dialogue.ErrInvalidOption),
		errors.Is(err, dialogue.ErrExpectedOption),
		errors.Is(err, dialogue.ErrExpectedText):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dialogue.ErrNotOpen):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dialogue.ErrSessionClosed):
		Error(w, http.StatusGone, err.Error())
	default:
		slog.Error("support turn failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
