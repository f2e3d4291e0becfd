// Package transcriptlog writes support conversation events as NDJSON, one
// file per (user, widget session), with an optional global stream. Writes
// are queued and performed by a single background goroutine so logging never
// blocks a dialogue turn.
package transcriptlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event is one logged transcript entry.
type Event struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Direction  string         `json:"direction"` // "inbound" (bot) or "outbound" (user)
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Config controls the logger. Zero Enabled disables all writes.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Logger records transcript events.
type Logger interface {
	Log(event Event)
	Close() error
}

// New creates a transcript logger. A disabled config yields a no-op logger.
func New(cfg Config, log *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopLogger{}, nil
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create transcript log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global transcript log dir: %w", err)
		}
	}

	l := &fileLogger{
		cfg:   cfg,
		log:   log,
		queue: make(chan Event, cfg.QueueSize),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

type fileLogger struct {
	cfg Config
	log *slog.Logger

	// mu guards queue sends against Close: the channel is only closed while
	// holding mu with closed already set, so a send can never hit a closed
	// channel.
	mu     sync.Mutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

// Log enqueues an event. Events are dropped with a warning when the queue is
// full; transcript logging must never stall the conversation. Events logged
// after Close are discarded.
func (l *fileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = CleanForReadability(event.ContentRaw)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	select {
	case l.queue <- event:
		l.mu.Unlock()
	default:
		l.mu.Unlock()
		l.log.Warn("transcript log queue full, dropping event",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"event_type", event.EventType,
		)
	}
}

// Close stops the writer after draining queued events.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}

func (l *fileLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		l.write(event)
	}
}

func (l *fileLogger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.log.Warn("failed to marshal transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	if l.cfg.Enabled {
		dir := filepath.Join(l.cfg.Dir, sanitizePathComponent(event.UserID))
		if err := os.MkdirAll(dir, 0755); err != nil {
			l.log.Warn("failed to create per-user transcript dir", "error", err)
		} else {
			path := filepath.Join(dir, sanitizePathComponent(event.SessionID)+".ndjson")
			l.appendFile(path, line)
		}
	}
	if l.cfg.GlobalEnabled {
		l.appendFile(l.cfg.GlobalPath, line)
	}
}

func (l *fileLogger) appendFile(path string, line []byte) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.log.Warn("failed to open transcript log file", "path", path, "error", err)
		return
	}
	if _, err := f.Write(line); err != nil {
		l.log.Warn("failed to write transcript log line", "path", path, "error", err)
	}
	if err := f.Close(); err != nil {
		l.log.Warn("failed to close transcript log file", "path", path, "error", err)
	}
}

type noopLogger struct{}

func (noopLogger) Log(Event) {}

func (noopLogger) Close() error { return nil }

var (
	boldPattern     = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._:-]`)
)

// CleanForReadability reduces transcript markup to plain text: bold markers
// removed, explicit line breaks normalized.
func CleanForReadability(raw string) string {
	clean := boldPattern.ReplaceAllString(raw, "$1")
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	return strings.TrimSpace(clean)
}

func sanitizePathComponent(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}
