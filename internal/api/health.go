package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wisio/supportdesk/internal/store"
)

// HealthHandler reports service health.
type HealthHandler struct {
	repo    store.Repository
	started time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo, started: time.Now()}
}

// RegisterHealth registers the health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.HandleHealth)
}

// HandleHealth returns service status including database connectivity.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := h.repo.Ping(r.Context()) == nil
	status := http.StatusOK
	state := "ok"
	if !dbOK {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	JSON(w, status, map[string]interface{}{
		"status":         state,
		"database":       dbOK,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
