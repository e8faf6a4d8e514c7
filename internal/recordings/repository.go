package recordings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/apperr"
	"github.com/lingua-hub/backend/pkg/database"
)

const recordingColumns = `id, room_id, capture_id, file_name, bucket, object_key, format, status,
	duration_seconds, file_size_bytes, error_message, started_at, completed_at, created_at, updated_at`

// Repository persists recording metadata in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recording repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new recording row in its initial status. A duplicate
// capture id is a conflict: the provider re-announcing a capture must not
// become a generic failure.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	query := `
		INSERT INTO recordings (room_id, capture_id, file_name, bucket, object_key, format, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		rec.RoomID, rec.CaptureID, rec.FileName, rec.Bucket, rec.ObjectKey,
		rec.Format, rec.Status, rec.StartedAt,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return apperr.Conflict("capture already registered: " + rec.CaptureID)
	}
	return err
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.RoomID, &rec.CaptureID, &rec.FileName, &rec.Bucket,
		&rec.ObjectKey, &rec.Format, &rec.Status, &rec.DurationSeconds, &rec.FileSizeBytes,
		&rec.ErrorMessage, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID returns a recording by id, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	return scanRecording(r.pool.QueryRow(ctx, query, id))
}

// GetByCaptureID returns a recording by its provider capture id, or nil.
func (r *Repository) GetByCaptureID(ctx context.Context, captureID string) (*models.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE capture_id = $1`
	return scanRecording(r.pool.QueryRow(ctx, query, captureID))
}

// ListByRoom returns all recordings of a room, newest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE room_id = $1 ORDER BY started_at DESC`
	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// ListByStudent returns completed recordings of rooms the student joined.
func (r *Repository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Recording, error) {
	query := `
		SELECT ` + recordingColumns + ` FROM recordings
		WHERE status = $1 AND room_id IN (
			SELECT room_id FROM room_participants WHERE student_id = $2 AND joined_at IS NOT NULL
		)
		ORDER BY started_at DESC`
	rows, err := r.pool.Query(ctx, query, models.RecordingStatusCompleted, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

func collectRecordings(rows pgx.Rows) ([]models.Recording, error) {
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.CaptureID, &rec.FileName, &rec.Bucket,
			&rec.ObjectKey, &rec.Format, &rec.Status, &rec.DurationSeconds, &rec.FileSizeBytes,
			&rec.ErrorMessage, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// UpdateStatus moves a recording to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

// MarkCompleted finalizes a recording with its measured size and duration.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, sizeBytes int64, durationSeconds *int, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE recordings
		SET status = $1, file_size_bytes = $2, duration_seconds = $3,
		    completed_at = $4, error_message = '', updated_at = NOW()
		WHERE id = $5`,
		models.RecordingStatusCompleted, sizeBytes, durationSeconds, at, id)
	return err
}

// MarkFailed records a terminal failure with its cause.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE recordings SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3`,
		models.RecordingStatusFailed, reason, id)
	return err
}

// Delete removes the metadata row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	return err
}
