package rtc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingua-hub/backend/internal/models"
)

// TokenRepository persists access-token audit rows.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates an access-token repository.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Insert stores an issued-credential record.
func (r *TokenRepository) Insert(ctx context.Context, t *models.AccessToken) error {
	const q = `INSERT INTO access_tokens (id, user_id, room_id, token, identity, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, t.UserID, t.RoomID, t.Token, t.Identity, t.ExpiresAt).
		Scan(&t.ID, &t.CreatedAt)
}

// DeleteExpired removes audit rows whose expires_at is before the cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM access_tokens WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, q, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByRoom returns issued credentials for a room, newest first.
func (r *TokenRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.AccessToken, error) {
	const q = `SELECT id, user_id, room_id, token, identity, expires_at, created_at
		FROM access_tokens WHERE room_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AccessToken
	for rows.Next() {
		var t models.AccessToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.RoomID, &t.Token, &t.Identity, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
