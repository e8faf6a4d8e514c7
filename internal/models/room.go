package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus represents the room lifecycle state.
type RoomStatus string

const (
	RoomStatusScheduled RoomStatus = "scheduled"
	RoomStatusLive      RoomStatus = "live"
	RoomStatusCompleted RoomStatus = "completed"
	RoomStatusCancelled RoomStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s RoomStatus) Terminal() bool {
	return s == RoomStatusCompleted || s == RoomStatusCancelled
}

// AnimatorType says who runs the session.
type AnimatorType string

const (
	AnimatorAI        AnimatorType = "ai"
	AnimatorProfessor AnimatorType = "professor"
)

// Room is a scheduled live group video session.
// LivekitRoomName is assigned once at creation and never reused.
type Room struct {
	ID              uuid.UUID    `json:"id"`
	Name            string       `json:"name"`
	Language        string       `json:"language"`
	Level           string       `json:"level"`
	Objective       string       `json:"objective,omitempty"`
	ScheduledAt     time.Time    `json:"scheduled_at"`
	DurationMinutes int          `json:"duration_minutes"`
	MaxParticipants int          `json:"max_participants"`
	Status          RoomStatus   `json:"status"`
	AnimatorType    AnimatorType `json:"animator_type"`
	ProfessorID     *uuid.UUID   `json:"professor_id,omitempty"`
	LivekitRoomName string       `json:"livekit_room_name"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
