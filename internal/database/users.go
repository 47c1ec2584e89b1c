// Package database is the user directory. It runs against postgres via
// pgx in shared deployments, or an embedded sqlite file for
// single-binary installs; both back the same UserStore contract.
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ke2zo/durak6/internal/models"
)

// ErrUserNotFound means no row exists for the given internal id.
var ErrUserNotFound = errors.New("database: user not found")

// UserStore is the directory contract: upsert on every successful auth,
// keyed by the external (Telegram) user id.
type UserStore interface {
	// UpsertUser inserts or refreshes the row for u.ExternalID and
	// returns the stored record including its internal id.
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
	// GetUser fetches a row by internal id, or ErrUserNotFound.
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	Close()
}
