// Package models holds the shared record types persisted outside the
// room actors.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is one row of the user directory, keyed internally by UUID and
// externally by the Telegram user id.
type User struct {
	ID           uuid.UUID `json:"id"`
	ExternalID   int64     `json:"externalId"`
	FirstName    string    `json:"firstName"`
	Username     string    `json:"username,omitempty"`
	LanguageCode string    `json:"languageCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
