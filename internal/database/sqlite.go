package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ke2zo/durak6/internal/models"
)

const usersSchemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	external_id INTEGER UNIQUE NOT NULL,
	first_name TEXT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	language_code TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite is the embedded single-binary user directory.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file and ensures the schema.
// Use ":memory:" for tests.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("database: open sqlite: %w", err)
	}
	// The modernc driver is not safe for concurrent writers over
	// multiple connections.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: sqlite pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, usersSchemaSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// UpsertUser inserts or refreshes the row keyed by external id.
func (s *SQLite) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, external_id, first_name, username, language_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			first_name = excluded.first_name,
			username = excluded.username,
			language_code = excluded.language_code,
			updated_at = excluded.updated_at`,
		uuid.NewString(), u.ExternalID, u.FirstName, u.Username, u.LanguageCode,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("database: upsert user %d: %w", u.ExternalID, err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, first_name, username, language_code, created_at, updated_at
		FROM users WHERE external_id = ?`, u.ExternalID)
	var (
		out                  models.User
		idText               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&idText, &out.ExternalID, &out.FirstName, &out.Username,
		&out.LanguageCode, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("database: read back user %d: %w", u.ExternalID, err)
	}
	out.ID, err = uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("database: user %d has bad id %q", u.ExternalID, idText)
	}
	out.CreatedAt = time.Unix(createdAt, 0).UTC()
	out.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &out, nil
}

// GetUser fetches a row by internal id.
func (s *SQLite) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, first_name, username, language_code, created_at, updated_at
		FROM users WHERE id = ?`, id.String())
	var (
		out                  models.User
		idText               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&idText, &out.ExternalID, &out.FirstName, &out.Username,
		&out.LanguageCode, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: get user %s: %w", id, err)
	}
	out.ID, err = uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("database: user %s has bad id %q", id, idText)
	}
	out.CreatedAt = time.Unix(createdAt, 0).UTC()
	out.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &out, nil
}

// Close closes the underlying handle.
func (s *SQLite) Close() { _ = s.db.Close() }
