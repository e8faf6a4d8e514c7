package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessToken is an audit record of a minted RTC room credential.
// Rows are never mutated; the hourly sweep deletes expired ones. Deleting a
// row does not revoke the credential itself - its validity window is baked in.
type AccessToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	RoomID    uuid.UUID `json:"room_id"`
	Token     string    `json:"-"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
