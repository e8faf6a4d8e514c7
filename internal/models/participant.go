package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a student's membership and in-call state for one room.
// At most one row exists per (room, student); join is idempotent.
type Participant struct {
	ID              uuid.UUID  `json:"id"`
	RoomID          uuid.UUID  `json:"room_id"`
	StudentID       uuid.UUID  `json:"student_id"`
	Invited         bool       `json:"invited"`
	JoinedAt        *time.Time `json:"joined_at,omitempty"`
	LeftAt          *time.Time `json:"left_at,omitempty"`
	IsMuted         bool       `json:"is_muted"`
	IsCameraOn      bool       `json:"is_camera_on"`
	IsScreenSharing bool       `json:"is_screen_sharing"`
	HandRaised      bool       `json:"hand_raised"`
	IsPinged        bool       `json:"is_pinged"`
	PingedAt        *time.Time `json:"pinged_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
