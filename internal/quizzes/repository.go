package quizzes

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

// Repository persists quizzes, questions and results in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a quiz repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the quiz and its questions in one transaction.
func (r *Repository) Create(ctx context.Context, quiz *models.Quiz) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO quizzes (title, description, room_id, created_by, is_published, time_limit_minutes, passing_score_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		quiz.Title, quiz.Description, quiz.RoomID, quiz.CreatedBy,
		quiz.IsPublished, quiz.TimeLimitMinutes, quiz.PassingScorePercent,
	).Scan(&quiz.ID, &quiz.CreatedAt, &quiz.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		q.QuizID = quiz.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO quiz_questions (quiz_id, text, options, correct_option, points, order_index)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			q.QuizID, q.Text, q.Options, q.CorrectOption, q.Points, q.OrderIndex,
		).Scan(&q.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetByID returns a quiz with its questions ordered, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	var quiz models.Quiz
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, description, room_id, created_by, is_published,
		       time_limit_minutes, passing_score_percent, created_at, updated_at
		FROM quizzes WHERE id = $1`, id,
	).Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.RoomID, &quiz.CreatedBy,
		&quiz.IsPublished, &quiz.TimeLimitMinutes, &quiz.PassingScorePercent,
		&quiz.CreatedAt, &quiz.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, quiz_id, text, options, correct_option, points, order_index
		FROM quiz_questions WHERE quiz_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.Options,
			&q.CorrectOption, &q.Points, &q.OrderIndex); err != nil {
			return nil, err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// List returns quizzes, optionally scoped to a room. Questions are not loaded.
func (r *Repository) List(ctx context.Context, roomID *uuid.UUID, publishedOnly bool) ([]models.Quiz, error) {
	query := `
		SELECT id, title, description, room_id, created_by, is_published,
		       time_limit_minutes, passing_score_percent, created_at, updated_at
		FROM quizzes WHERE 1=1`
	args := []interface{}{}
	if roomID != nil {
		args = append(args, *roomID)
		query += ` AND room_id = $1`
	}
	if publishedOnly {
		query += ` AND is_published = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Quiz
	for rows.Next() {
		var quiz models.Quiz
		if err := rows.Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.RoomID,
			&quiz.CreatedBy, &quiz.IsPublished, &quiz.TimeLimitMinutes,
			&quiz.PassingScorePercent, &quiz.CreatedAt, &quiz.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, quiz)
	}
	return list, rows.Err()
}

// SetPublished flips the publication flag.
func (r *Repository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET is_published = $1, updated_at = NOW() WHERE id = $2`, published, id)
	return err
}

// Delete removes the quiz. Questions cascade; results are kept with their
// answer snapshots.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	return err
}

// HasResult reports whether the student already submitted this quiz.
func (r *Repository) HasResult(ctx context.Context, quizID, studentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM quiz_results WHERE quiz_id = $1 AND student_id = $2)`,
		quizID, studentID,
	).Scan(&exists)
	return exists, err
}

// SaveResult inserts the result and its answer snapshots in one transaction.
func (r *Repository) SaveResult(ctx context.Context, result *models.QuizResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO quiz_results (quiz_id, student_id, score_percent, total_questions, correct_count, passed, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		result.QuizID, result.StudentID, result.ScorePercent,
		result.TotalQuestions, result.CorrectCount, result.Passed, result.CompletedAt,
	).Scan(&result.ID)
	if err != nil {
		// Concurrent submissions can both pass the pre-check; the unique
		// index decides, and the loser is a duplicate, not a failure.
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("quiz already submitted")
		}
		return err
	}

	for i := range result.Answers {
		a := &result.Answers[i]
		a.ResultID = result.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO quiz_answers (result_id, question_id, question_text, selected_option, correct_option, is_correct)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			a.ResultID, a.QuestionID, a.QuestionText, a.SelectedOption, a.CorrectOption, a.IsCorrect,
		).Scan(&a.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListResults returns all results of a quiz, best score first.
func (r *Repository) ListResults(ctx context.Context, quizID uuid.UUID) ([]models.QuizResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, quiz_id, student_id, score_percent, total_questions, correct_count, passed, completed_at
		FROM quiz_results WHERE quiz_id = $1 ORDER BY score_percent DESC, completed_at`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResults(rows)
}

// ListStudentResults returns a student's results across quizzes, newest first.
func (r *Repository) ListStudentResults(ctx context.Context, studentID uuid.UUID) ([]models.QuizResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, quiz_id, student_id, score_percent, total_questions, correct_count, passed, completed_at
		FROM quiz_results WHERE student_id = $1 ORDER BY completed_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResults(rows)
}

func collectResults(rows pgx.Rows) ([]models.QuizResult, error) {
	var list []models.QuizResult
	for rows.Next() {
		var res models.QuizResult
		var completedAt time.Time
		if err := rows.Scan(&res.ID, &res.QuizID, &res.StudentID, &res.ScorePercent,
			&res.TotalQuestions, &res.CorrectCount, &res.Passed, &completedAt); err != nil {
			return nil, err
		}
		res.CompletedAt = completedAt
		list = append(list, res)
	}
	return list, rows.Err()
}
