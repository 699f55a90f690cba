// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides traffic ledger persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// defaultRecentLimit applies when RecentEntries gets a non-positive limit.
const defaultRecentLimit = 50

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ledger (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			tool TEXT,
			topic TEXT,
			payload TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_session_created
			ON ledger(session_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// RecordEntry appends one ledger entry, generating ID and CreatedAt when the
// caller left them empty.
func (s *SQLiteStore) RecordEntry(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO ledger (id, session_id, kind, tool, topic, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.Kind,
		nullString(entry.Tool),
		nullString(entry.Topic),
		nullString(entry.Payload),
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", err)
	}

	s.logger.Debug("recorded ledger entry", "id", entry.ID, "session_id", entry.SessionID, "kind", entry.Kind)
	return nil
}

// nullString returns nil for empty strings, otherwise the string pointer
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecentEntries retrieves the most recent ledger entries, newest first.
// The rowid tiebreak keeps insert order within a one-second timestamp.
func (s *SQLiteStore) RecentEntries(ctx context.Context, sessionID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	var query string
	var args []any

	if sessionID != "" {
		query = `
			SELECT id, session_id, kind, tool, topic, payload, created_at
			FROM ledger
			WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`
		args = []any{sessionID, limit}
	} else {
		query = `
			SELECT id, session_id, kind, tool, topic, payload, created_at
			FROM ledger
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var createdAtStr string
		var tool, topic, payload *string

		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Kind, &tool, &topic, &payload, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}

		entry.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing ledger created_at: %w", err)
		}

		// Handle nullable fields
		if tool != nil {
			entry.Tool = *tool
		}
		if topic != nil {
			entry.Topic = *topic
		}
		if payload != nil {
			entry.Payload = *payload
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger rows: %w", err)
	}

	return entries, nil
}
