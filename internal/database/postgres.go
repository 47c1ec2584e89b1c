package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ke2zo/durak6/internal/models"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	external_id BIGINT UNIQUE NOT NULL,
	first_name TEXT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	language_code TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Postgres is the pgx-backed user directory.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool and ensures the users table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, usersSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// UpsertUser inserts or refreshes the row keyed by external id.
func (p *Postgres) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (id, external_id, first_name, username, language_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (external_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			username = EXCLUDED.username,
			language_code = EXCLUDED.language_code,
			updated_at = EXCLUDED.updated_at
		RETURNING id, external_id, first_name, username, language_code, created_at, updated_at`,
		uuid.New(), u.ExternalID, u.FirstName, u.Username, u.LanguageCode, now,
	)
	var out models.User
	if err := row.Scan(&out.ID, &out.ExternalID, &out.FirstName, &out.Username,
		&out.LanguageCode, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("database: upsert user %d: %w", u.ExternalID, err)
	}
	return &out, nil
}

// GetUser fetches a row by internal id.
func (p *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, external_id, first_name, username, language_code, created_at, updated_at
		FROM users WHERE id = $1`, id)
	var out models.User
	if err := row.Scan(&out.ID, &out.ExternalID, &out.FirstName, &out.Username,
		&out.LanguageCode, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database: get user %s: %w", id, err)
	}
	return &out, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }
