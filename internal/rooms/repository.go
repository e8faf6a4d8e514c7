package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingua-hub/backend/internal/models"
)

const roomColumns = `id, name, language, level, objective, scheduled_at, duration_minutes,
	max_participants, status, animator_type, professor_id, livekit_room_name, created_at, updated_at`

// Repository handles room persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a room repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new room.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, name, language, level, objective, scheduled_at, duration_minutes,
			max_participants, status, animator_type, professor_id, livekit_room_name)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		room.Name, room.Language, room.Level, room.Objective, room.ScheduledAt, room.DurationMinutes,
		room.MaxParticipants, room.Status, room.AnimatorType, room.ProfessorID, room.LivekitRoomName).
		Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var room models.Room
	err := row.Scan(&room.ID, &room.Name, &room.Language, &room.Level, &room.Objective,
		&room.ScheduledAt, &room.DurationMinutes, &room.MaxParticipants, &room.Status,
		&room.AnimatorType, &room.ProfessorID, &room.LivekitRoomName, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// GetByID returns a room by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	return scanRoom(r.pool.QueryRow(ctx, q, id))
}

// GetByLivekitName returns a room by its external RTC name, or nil when absent.
func (r *Repository) GetByLivekitName(ctx context.Context, name string) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE livekit_room_name = $1`
	return scanRoom(r.pool.QueryRow(ctx, q, name))
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Status       models.RoomStatus
	Language     string
	Level        string
	ProfessorID  *uuid.UUID
	AnimatorType models.AnimatorType
	From         *time.Time
	To           *time.Time
	Search       string
}

// List returns rooms matching the filter, newest schedule first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms`
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Language != "" {
		add("language = $%d", f.Language)
	}
	if f.Level != "" {
		add("level = $%d", f.Level)
	}
	if f.ProfessorID != nil {
		add("professor_id = $%d", *f.ProfessorID)
	}
	if f.AnimatorType != "" {
		add("animator_type = $%d", f.AnimatorType)
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at <= $%d", *f.To)
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE '%%' || $%d || '%%' OR objective ILIKE '%%' || $%d || '%%')", n, n))
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY scheduled_at DESC"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *room)
	}
	return list, rows.Err()
}

// Update rewrites mutable room fields (not status - transitions go through
// UpdateStatus so the state machine stays the single writer).
func (r *Repository) Update(ctx context.Context, room *models.Room) error {
	const q = `UPDATE rooms SET name = $1, objective = $2, scheduled_at = $3, duration_minutes = $4,
		max_participants = $5, updated_at = NOW() WHERE id = $6`
	_, err := r.pool.Exec(ctx, q, room.Name, room.Objective, room.ScheduledAt,
		room.DurationMinutes, room.MaxParticipants, room.ID)
	return err
}

// UpdateStatus sets the room status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RoomStatus) error {
	const q = `UPDATE rooms SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// SetLivekitName assigns the external RTC room name.
func (r *Repository) SetLivekitName(ctx context.Context, id uuid.UUID, name string) error {
	const q = `UPDATE rooms SET livekit_room_name = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, name, id)
	return err
}

// Delete removes a room by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM rooms WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
