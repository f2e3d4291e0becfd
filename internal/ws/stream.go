// Package ws streams support conversation events over WebSocket, as an
// alternative to the widget's transcript polling.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/wisio/supportdesk/internal/dialogue"
	"github.com/wisio/supportdesk/internal/identity"
	"github.com/wisio/supportdesk/internal/store"
)

const keepaliveInterval = 30 * time.Second

// StreamHandler upgrades widget connections and pushes engine events.
type StreamHandler struct {
	registry      *dialogue.Registry
	repo          store.Repository
	allowedOrigin string
	isDev         bool
}

// NewStreamHandler creates a WebSocket stream handler.
func NewStreamHandler(registry *dialogue.Registry, repo store.Repository, allowedOrigin string, isDev bool) *StreamHandler {
	return &StreamHandler{
		registry:      registry,
		repo:          repo,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	key := userID + ":" + sessionID
	handle := h.registry.Get(key)
	if handle == nil {
		http.Error(w, "no open support session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.isDev,
	})
	if err != nil {
		slog.Warn("WebSocket accept failed", "user_id", userID, "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "stream closed")
	}()

	events, cancel := handle.Subscribe()
	defer cancel()

	if err := h.repo.UpdateLastSeen(r.Context(), userID, time.Now()); err != nil {
		slog.Warn("failed to update last seen", "user_id", userID, "error", err)
	}

	slog.Info("support stream connected", "user_id", userID, "session_id", sessionID)

	ctx := r.Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("support stream disconnected", "user_id", userID, "session_id", sessionID)
			return
		case <-keepalive.C:
			if err := conn.Ping(ctx); err != nil {
				slog.Debug("support stream ping failed", "user_id", userID, "error", err)
				return
			}
		case ev, ok := <-events:
			if !ok {
				// Session closed or expired; tell the widget and stop.
				_ = conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				slog.Debug("support stream write failed", "user_id", userID, "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev dialogue.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.allowedOrigin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	allowed, err := url.Parse(h.allowedOrigin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, allowed.Host)
}
