package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents recording lifecycle.
const (
	RecordingStatusRecording  = "recording"
	RecordingStatusProcessing = "processing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusFailed     = "failed"
)

// Recording is metadata for a captured room session (capture -> object store).
// Bucket and ObjectKey are frozen when the row is created and never change,
// even across upload retries.
type Recording struct {
	ID              uuid.UUID  `json:"id"`
	RoomID          uuid.UUID  `json:"room_id"`
	CaptureID       string     `json:"capture_id"` // external id assigned by the RTC service
	FileName        string     `json:"file_name"`
	Bucket          string     `json:"-"`
	ObjectKey       string     `json:"-"`
	Format          string     `json:"format"`
	Status          string     `json:"status"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	FileSizeBytes   *int64     `json:"file_size_bytes,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
