package rooms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingua-hub/backend/internal/models"
)

const participantColumns = `id, room_id, student_id, invited, joined_at, left_at, is_muted,
	is_camera_on, is_screen_sharing, hand_raised, is_pinged, pinged_at, created_at, updated_at`

// ParticipantRepository handles participant persistence. It carries no policy
// of its own; the room service is the only writer.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a participant repository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// Insert creates a participant row if none exists for (room, student). The
// unique constraint makes concurrent inserts collapse into one row.
func (r *ParticipantRepository) Insert(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO room_participants (id, room_id, student_id, invited)
		VALUES (gen_random_uuid(), $1, $2, $3)
		ON CONFLICT (room_id, student_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, p.RoomID, p.StudentID, p.Invited)
	return err
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.RoomID, &p.StudentID, &p.Invited, &p.JoinedAt, &p.LeftAt,
		&p.IsMuted, &p.IsCameraOn, &p.IsScreenSharing, &p.HandRaised, &p.IsPinged, &p.PingedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindByRoom returns all participants of a room.
func (r *ParticipantRepository) FindByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	q := `SELECT ` + participantColumns + ` FROM room_participants WHERE room_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// FindByRoomAndStudent returns the participant row, or nil when absent.
func (r *ParticipantRepository) FindByRoomAndStudent(ctx context.Context, roomID, studentID uuid.UUID) (*models.Participant, error) {
	q := `SELECT ` + participantColumns + ` FROM room_participants WHERE room_id = $1 AND student_id = $2`
	return scanParticipant(r.pool.QueryRow(ctx, q, roomID, studentID))
}

// CountJoined returns the number of participants that have joined the room.
func (r *ParticipantRepository) CountJoined(ctx context.Context, roomID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM room_participants WHERE room_id = $1 AND joined_at IS NOT NULL`
	var n int
	err := r.pool.QueryRow(ctx, q, roomID).Scan(&n)
	return n, err
}

// StampJoined sets joined_at if it is still null, so the first join wins and
// repeats are no-ops.
func (r *ParticipantRepository) StampJoined(ctx context.Context, roomID, studentID uuid.UUID, at time.Time) error {
	const q = `UPDATE room_participants SET joined_at = $3, updated_at = NOW()
		WHERE room_id = $1 AND student_id = $2 AND joined_at IS NULL`
	_, err := r.pool.Exec(ctx, q, roomID, studentID, at)
	return err
}

// SetMuted sets the muted flag.
func (r *ParticipantRepository) SetMuted(ctx context.Context, roomID, studentID uuid.UUID, muted bool) error {
	const q = `UPDATE room_participants SET is_muted = $3, updated_at = NOW()
		WHERE room_id = $1 AND student_id = $2`
	_, err := r.pool.Exec(ctx, q, roomID, studentID, muted)
	return err
}

// SetPing sets the ping flag and timestamp together (both set or both clear).
func (r *ParticipantRepository) SetPing(ctx context.Context, roomID, studentID uuid.UUID, pinged bool, at *time.Time) error {
	const q = `UPDATE room_participants SET is_pinged = $3, pinged_at = $4, updated_at = NOW()
		WHERE room_id = $1 AND student_id = $2`
	_, err := r.pool.Exec(ctx, q, roomID, studentID, pinged, at)
	return err
}

// MarkLeft stamps left_at.
func (r *ParticipantRepository) MarkLeft(ctx context.Context, roomID, studentID uuid.UUID, at time.Time) error {
	const q = `UPDATE room_participants SET left_at = $3, updated_at = NOW()
		WHERE room_id = $1 AND student_id = $2`
	_, err := r.pool.Exec(ctx, q, roomID, studentID, at)
	return err
}
