package models

import (
	"time"

	"github.com/google/uuid"
)

// Quiz is an in-session assessment. IsPublished is a one-way gate: publishing
// requires at least one question and cannot be undone.
type Quiz struct {
	ID                  uuid.UUID  `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	RoomID              *uuid.UUID `json:"room_id,omitempty"`
	CreatedBy           uuid.UUID  `json:"created_by"`
	IsPublished         bool       `json:"is_published"`
	TimeLimitMinutes    *int       `json:"time_limit_minutes,omitempty"`
	PassingScorePercent int        `json:"passing_score_percent"`
	Questions           []Question `json:"questions,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Question is a multiple-choice question with exactly one correct option.
type Question struct {
	ID            uuid.UUID `json:"id"`
	QuizID        uuid.UUID `json:"quiz_id"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"correct_option"`
	Points        int       `json:"points"`
	OrderIndex    int       `json:"order_index"`
}

// QuizResult is a student's scored submission. One row per (quiz, student).
type QuizResult struct {
	ID             uuid.UUID    `json:"id"`
	QuizID         uuid.UUID    `json:"quiz_id"`
	StudentID      uuid.UUID    `json:"student_id"`
	ScorePercent   int          `json:"score_percent"`
	TotalQuestions int          `json:"total_questions"`
	CorrectCount   int          `json:"correct_count"`
	Passed         bool         `json:"passed"`
	Answers        []QuizAnswer `json:"answers,omitempty"`
	CompletedAt    time.Time    `json:"completed_at"`
}

// QuizAnswer records one answered question together with a snapshot of the
// question text and correct option, so results stay reviewable after the quiz
// is edited or deleted.
type QuizAnswer struct {
	ID             uuid.UUID `json:"id"`
	ResultID       uuid.UUID `json:"result_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	QuestionText   string    `json:"question_text"`
	SelectedOption int       `json:"selected_option"`
	CorrectOption  int       `json:"correct_option"`
	IsCorrect      bool      `json:"is_correct"`
}
