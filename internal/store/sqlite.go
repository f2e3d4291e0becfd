package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wisio/supportdesk/internal/domain"
	"github.com/wisio/supportdesk/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);

	CREATE TABLE IF NOT EXISTS tickets (
		ticket_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		issue TEXT NOT NULL,
		contact_method TEXT NOT NULL DEFAULT '',
		contact_detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id);

	CREATE TABLE IF NOT EXISTS transcript_archives (
		archive_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_key TEXT NOT NULL,
		outcome TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archives_created ON transcript_archives(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, role, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var role string
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &role, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Role = domain.Role(role)
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, role, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		role = excluded.role,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, string(user.Role),
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// SaveTicket creates or updates a ticket. Contact details captured after the
// initial save overwrite the earlier row. Retries with exponential backoff on
// SQLITE_BUSY, since ticket writes race archive writes under WAL.
func (s *SQLiteStore) SaveTicket(ctx context.Context, ticket *domain.Ticket) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.saveTicketOnce(ctx, ticket)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("SaveTicket hit SQLITE_BUSY, retrying",
				"ticket_id", ticket.ID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("save ticket %s after %d attempts: %w", ticket.ID, maxRetries, err)
}

func (s *SQLiteStore) saveTicketOnce(ctx context.Context, ticket *domain.Ticket) error {
	query := `
	INSERT INTO tickets (ticket_id, user_id, origin, issue, contact_method, contact_detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ticket_id) DO UPDATE SET
		origin = excluded.origin,
		issue = excluded.issue,
		contact_method = excluded.contact_method,
		contact_detail = excluded.contact_detail`

	_, err := s.db.ExecContext(ctx, query,
		ticket.ID, ticket.UserID, string(ticket.Origin), ticket.Issue,
		string(ticket.ContactMethod), ticket.ContactDetail, ticket.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	return nil
}

// GetTicket retrieves a ticket by ID.
func (s *SQLiteStore) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	query := `
		SELECT ticket_id, user_id, origin, issue, contact_method, contact_detail, created_at
		FROM tickets WHERE ticket_id = ?`

	row := s.db.QueryRowContext(ctx, query, ticketID)

	var ticket domain.Ticket
	var origin, method string
	var createdAt int64

	err := row.Scan(&ticket.ID, &ticket.UserID, &origin, &ticket.Issue, &method, &ticket.ContactDetail, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan ticket row: %w", err)
	}

	ticket.Origin = domain.TicketOrigin(origin)
	ticket.ContactMethod = domain.ContactMethod(method)
	ticket.CreatedAt = time.Unix(createdAt, 0)

	return &ticket, nil
}

// ArchiveTranscript stores the transcript of a finished session.
func (s *SQLiteStore) ArchiveTranscript(ctx context.Context, userID, sessionKey string, session *domain.Session, outcome string) error {
	archiveID, err := domain.NewArchiveID()
	if err != nil {
		return fmt.Errorf("generate archive id: %w", err)
	}

	messagesJSON, err := json.Marshal(session.History)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	query := `
	INSERT INTO transcript_archives (archive_id, user_id, session_key, outcome, messages_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		archiveID, userID, sessionKey, outcome, string(messagesJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert transcript archive: %w", err)
	}
	return nil
}

// GetArchive retrieves an archived transcript by its archive ID.
func (s *SQLiteStore) GetArchive(ctx context.Context, archiveID string) (*TranscriptArchive, error) {
	query := `
		SELECT archive_id, user_id, session_key, outcome, messages_json, created_at
		FROM transcript_archives WHERE archive_id = ?`

	row := s.db.QueryRowContext(ctx, query, archiveID)

	var archive TranscriptArchive
	var messagesJSON string
	var createdAt int64

	err := row.Scan(&archive.ArchiveID, &archive.UserID, &archive.SessionKey, &archive.Outcome, &messagesJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan archive row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &archive.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal archived transcript: %w", err)
	}
	archive.CreatedAt = time.Unix(createdAt, 0)

	return &archive, nil
}

// CleanupExpiredArchives removes archives older than ttl.
func (s *SQLiteStore) CleanupExpiredArchives(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `DELETE FROM transcript_archives WHERE created_at < ?`
	result, err := s.db.ExecContext(ctx, query, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired archives: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
