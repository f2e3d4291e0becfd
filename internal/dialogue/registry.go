package dialogue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wisio/supportdesk/internal/domain"
)

// Archiver persists the transcript of a finished session. Implemented by the
// store; a nil archiver simply discards transcripts.
type Archiver interface {
	ArchiveTranscript(ctx context.Context, userID, sessionKey string, session *domain.Session, outcome string) error
}

// Handle wraps one live engine with the mutex that serializes its turns and
// the fan-out channels for websocket subscribers.
type Handle struct {
	mu          sync.Mutex
	engine      *Engine
	lastActive  time.Time
	subscribers map[int64]chan Event
	nextSubID   int64
	subMu       sync.Mutex
}

// Do runs fn with exclusive access to the engine. All turn processing goes
// through here so a session never handles two inputs at once.
func (h *Handle) Do(fn func(*Engine) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActive = time.Now()
	return fn(h.engine)
}

// Subscribe returns a channel of engine events and a cancel func. Slow
// subscribers lose events rather than blocking the engine.
func (h *Handle) Subscribe() (<-chan Event, func()) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	h.nextSubID++
	id := h.nextSubID
	ch := make(chan Event, 64)
	h.subscribers[id] = ch

	cancel := func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (h *Handle) broadcast(ev Event) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Debug("dropping event for slow subscriber", "subscriber_id", id, "event_type", ev.Type)
		}
	}
}

func (h *Handle) closeSubscribers() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}

// EventHook observes every engine event across all sessions, keyed by user
// and session. Used for transcript logging.
type EventHook func(userID, sessionKey string, ev Event)

// Registry owns the live in-memory sessions, one per (user, widget session)
// key. Sessions are created on first open and reaped after an idle TTL.
type Registry struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	deps     Deps
	archiver Archiver
	hook     EventHook
	log      *slog.Logger
}

// NewRegistry creates a session registry.
func NewRegistry(deps Deps, archiver Archiver, hook EventHook) *Registry {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		handles:  make(map[string]*Handle),
		deps:     deps,
		archiver: archiver,
		hook:     hook,
		log:      log,
	}
}

// Acquire returns the live handle for key, creating and opening a new
// session if none exists.
func (r *Registry) Acquire(key, userID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		return h
	}

	engine := New(userID, r.deps)
	h := &Handle{
		engine:      engine,
		lastActive:  time.Now(),
		subscribers: make(map[int64]chan Event),
	}
	engine.Subscribe(h.broadcast)
	if r.hook != nil {
		engine.Subscribe(func(ev Event) {
			r.hook(userID, key, ev)
		})
	}
	engine.Open()
	r.handles[key] = h
	r.log.Info("support session opened", "session_key", key, "user_id", userID)
	return h
}

// Get returns the live handle for key, or nil.
func (r *Registry) Get(key string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[key]
}

// CloseSession archives and removes the session for key. Returns false if no
// session was live.
func (r *Registry) CloseSession(ctx context.Context, key, outcome string) bool {
	r.mu.Lock()
	h, ok := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	h.engine.Close()
	session := h.engine.Session()
	h.mu.Unlock()

	r.archive(ctx, key, session, outcome)
	h.closeSubscribers()
	r.log.Info("support session closed", "session_key", key, "outcome", outcome)
	return true
}

// Sweep archives and removes sessions idle longer than ttl and returns how
// many were reaped.
func (r *Registry) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var stale []string
	for key, h := range r.handles {
		h.mu.Lock()
		idle := h.lastActive.Before(cutoff)
		h.mu.Unlock()
		if idle {
			stale = append(stale, key)
		}
	}
	r.mu.Unlock()

	for _, key := range stale {
		r.CloseSession(ctx, key, "expired")
	}
	return len(stale)
}

// StartJanitor reaps idle sessions until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(ctx, ttl); n > 0 {
					r.log.Info("reaped idle support sessions", "count", n)
				}
			}
		}
	}()
}

func (r *Registry) archive(ctx context.Context, key string, session *domain.Session, outcome string) {
	if r.archiver == nil || len(session.History) == 0 {
		return
	}
	if err := r.archiver.ArchiveTranscript(ctx, session.UserID, key, session, outcome); err != nil {
		r.log.Warn("failed to archive transcript", "session_key", key, "error", err)
	}
}
