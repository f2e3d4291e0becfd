package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wisio/supportdesk/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func TestPing(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "anon_missing")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing user, got %+v", got)
	}

	now := time.Now().Truncate(time.Second)
	user := &domain.User{
		UserID:     "anon_0123456789abcdef0123456789abcdef",
		Username:   "anon-89abcdef",
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	got, err = repo.GetUser(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.Username != user.Username {
		t.Fatalf("got %+v, want username %q", got, user.Username)
	}

	// Upsert with the same ID updates in place.
	user.Username = "anon-renamed"
	user.Role = domain.RoleExpert
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("second UpsertUser failed: %v", err)
	}
	got, err = repo.GetUser(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Username != "anon-renamed" || got.Role != domain.RoleExpert {
		t.Errorf("upsert did not update: %+v", got)
	}

	later := now.Add(time.Hour)
	if err := repo.UpdateLastSeen(ctx, user.UserID, later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}
	got, err = repo.GetUser(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Errorf("last seen not updated: got %v, want %v", got.LastSeenAt, later)
	}
}

func TestTicketSaveAndUpdate(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetTicket(ctx, "WI-missing")
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing ticket, got %+v", got)
	}

	ticket := &domain.Ticket{
		ID:        "WI-abc123defg",
		Origin:    domain.TicketProvisional,
		UserID:    "anon_0123456789abcdef0123456789abcdef",
		Issue:     "expert/credits/no_response",
		CreatedAt: time.Now().Truncate(time.Second),
	}
	if err := repo.SaveTicket(ctx, ticket); err != nil {
		t.Fatalf("SaveTicket failed: %v", err)
	}

	got, err = repo.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if got == nil || got.Issue != ticket.Issue || got.Origin != domain.TicketProvisional {
		t.Fatalf("got %+v, want %+v", got, ticket)
	}
	if got.ContactMethod != "" {
		t.Errorf("contact method should be empty before escalation finishes, got %q", got.ContactMethod)
	}

	// Saving again with contact details overwrites the earlier row.
	ticket.ContactMethod = domain.ContactCallback
	ticket.ContactDetail = "tomorrow 14:00"
	if err := repo.SaveTicket(ctx, ticket); err != nil {
		t.Fatalf("second SaveTicket failed: %v", err)
	}
	got, err = repo.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if got.ContactMethod != domain.ContactCallback || got.ContactDetail != "tomorrow 14:00" {
		t.Errorf("contact details not updated: %+v", got)
	}
}

func TestArchiveTranscriptRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("anon_0123456789abcdef0123456789abcdef")
	session.Append(domain.SpeakerBot, "Hi! How can I help?")
	session.Append(domain.SpeakerUser, "I'm a client")

	if err := repo.ArchiveTranscript(ctx, session.UserID, session.UserID+":default", session, "closed"); err != nil {
		t.Fatalf("ArchiveTranscript failed: %v", err)
	}

	// A negative ttl puts the threshold in the future, so every row counts as
	// expired. Confirms exactly one row was written.
	n, err := repo.CleanupExpiredArchives(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("CleanupExpiredArchives failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one archived row, cleanup removed %d", n)
	}
}

func TestGetArchiveReturnsMessages(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetArchive(ctx, "TR-missing")
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing archive, got %+v", got)
	}

	session := domain.NewSession("anon_0123456789abcdef0123456789abcdef")
	session.Append(domain.SpeakerBot, "greeting")
	session.Append(domain.SpeakerUser, "question with \"quotes\" and\nnewlines")

	if err := repo.ArchiveTranscript(ctx, session.UserID, "key", session, "expired"); err != nil {
		t.Fatalf("ArchiveTranscript failed: %v", err)
	}

	// Look the row up through the raw store to learn its generated ID.
	s := repo.(*SQLiteStore)
	var archiveID string
	if err := s.db.QueryRow(`SELECT archive_id FROM transcript_archives LIMIT 1`).Scan(&archiveID); err != nil {
		t.Fatalf("failed to read generated archive id: %v", err)
	}
	if !strings.HasPrefix(archiveID, "TR-") {
		t.Errorf("archive id should use the TR- prefix, got %q", archiveID)
	}

	archive, err := repo.GetArchive(ctx, archiveID)
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if archive == nil {
		t.Fatal("archive not found")
	}
	if archive.Outcome != "expired" || len(archive.Messages) != 2 {
		t.Errorf("unexpected archive: %+v", archive)
	}
	if archive.Messages[1].Text != "question with \"quotes\" and\nnewlines" {
		t.Errorf("message text not preserved: %q", archive.Messages[1].Text)
	}
}

func TestCleanupExpiredArchivesKeepsFreshRows(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("anon_0123456789abcdef0123456789abcdef")
	session.Append(domain.SpeakerBot, "greeting")
	if err := repo.ArchiveTranscript(ctx, session.UserID, "key", session, "closed"); err != nil {
		t.Fatalf("ArchiveTranscript failed: %v", err)
	}

	n, err := repo.CleanupExpiredArchives(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredArchives failed: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh archives must survive cleanup, removed %d", n)
	}
}
