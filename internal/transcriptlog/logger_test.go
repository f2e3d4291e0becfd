package transcriptlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForLines(t *testing.T, path string, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		events := readEvents(t, path)
		if len(events) >= want {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d lines in %s, have %d", want, path, len(events))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("malformed NDJSON line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Log(Event{UserID: "u", SessionID: "s", ContentRaw: "hello"})
	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestWritesPerSessionFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		UserID:     "anon_0123456789abcdef0123456789abcdef",
		SessionID:  "default",
		Direction:  "inbound",
		EventType:  "bot_message",
		ContentRaw: "Hi! **Welcome** to support.",
	})
	logger.Log(Event{
		UserID:     "anon_0123456789abcdef0123456789abcdef",
		SessionID:  "default",
		Direction:  "outbound",
		EventType:  "user_message",
		ContentRaw: "I'm a client",
	})

	path := filepath.Join(dir, "anon_0123456789abcdef0123456789abcdef", "default.ndjson")
	events := waitForLines(t, path, 2)

	if events[0].Content != "Hi! Welcome to support." {
		t.Errorf("bold markers should be stripped from the readable copy, got %q", events[0].Content)
	}
	if events[0].ContentRaw != "Hi! **Welcome** to support." {
		t.Errorf("raw content must be preserved, got %q", events[0].ContentRaw)
	}
	if events[0].Timestamp == "" {
		t.Error("timestamp should be filled in")
	}
	if events[1].Direction != "outbound" || events[1].EventType != "user_message" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestGlobalStream(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	globalPath := filepath.Join(dir, "all.ndjson")
	logger, err := New(Config{GlobalEnabled: true, GlobalPath: globalPath}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{UserID: "u1", SessionID: "s1", ContentRaw: "one"})
	logger.Log(Event{UserID: "u2", SessionID: "s2", ContentRaw: "two"})

	events := waitForLines(t, globalPath, 2)
	if events[0].UserID == events[1].UserID {
		t.Errorf("expected events from both users, got %+v", events)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 100}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		logger.Log(Event{UserID: "u", SessionID: "s", ContentRaw: "line"})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := readEvents(t, filepath.Join(dir, "u", "s.ndjson"))
	if len(events) != 50 {
		t.Errorf("Close must drain queued events, wrote %d of 50", len(events))
	}
}

func TestLogConcurrentWithCloseDoesNotPanic(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		dir := t.TempDir()
		logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 4}, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 200; j++ {
				logger.Log(Event{UserID: "u", SessionID: "s", ContentRaw: "line"})
			}
		}()

		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		<-done

		// Events after Close are silently discarded, and Close stays
		// idempotent.
		logger.Log(Event{UserID: "u", SessionID: "s", ContentRaw: "late"})
		if err := logger.Close(); err != nil {
			t.Fatalf("second Close failed: %v", err)
		}
	}
}

func TestPathComponentsAreSanitized(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Log(Event{UserID: "../escape", SessionID: "a/b", ContentRaw: "x"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := readEvents(t, filepath.Join(dir, ".._escape", "a_b.ndjson"))
	if len(events) != 1 {
		t.Errorf("expected the event under a sanitized path, got %d", len(events))
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape")); !os.IsNotExist(err) {
		t.Error("path traversal was not neutralized")
	}
}

func TestCleanForReadability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"**bold** text", "bold text"},
		{"windows\r\nbreaks", "windows\nbreaks"},
		{"  padded  ", "padded"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := CleanForReadability(tt.in); got != tt.want {
			t.Errorf("CleanForReadability(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
