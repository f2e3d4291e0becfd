// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/wisio/supportdesk/internal/domain"
)

// TranscriptArchive is the persisted record of a finished support session.
type TranscriptArchive struct {
	ArchiveID  string           `json:"archive_id"`
	UserID     string           `json:"user_id"`
	SessionKey string           `json:"session_key"`
	Outcome    string           `json:"outcome"`
	Messages   []domain.Message `json:"messages"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Repository defines the interface for persisting users, tickets and
// transcript archives.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when the
	// user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// SaveTicket creates or updates a ticket.
	SaveTicket(ctx context.Context, ticket *domain.Ticket) error

	// GetTicket retrieves a ticket by ID. Returns (nil, nil) when not found.
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)

	// ArchiveTranscript stores the transcript of a finished session.
	ArchiveTranscript(ctx context.Context, userID, sessionKey string, session *domain.Session, outcome string) error

	// GetArchive retrieves an archived transcript by its archive ID.
	GetArchive(ctx context.Context, archiveID string) (*TranscriptArchive, error)

	// CleanupExpiredArchives removes archives older than ttl and returns how
	// many rows were deleted.
	CleanupExpiredArchives(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
