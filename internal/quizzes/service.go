// Package quizzes implements quiz authoring, publication and scoring.
package quizzes

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/apperr"
)

// Store persists quizzes and results.
type Store interface {
	Create(ctx context.Context, quiz *models.Quiz) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	List(ctx context.Context, roomID *uuid.UUID, publishedOnly bool) ([]models.Quiz, error)
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasResult(ctx context.Context, quizID, studentID uuid.UUID) (bool, error)
	SaveResult(ctx context.Context, result *models.QuizResult) error
	ListResults(ctx context.Context, quizID uuid.UUID) ([]models.QuizResult, error)
	ListStudentResults(ctx context.Context, studentID uuid.UUID) ([]models.QuizResult, error)
}

// Service implements the quiz engine.
type Service struct {
	store               Store
	defaultPassingScore int
	now                 func() time.Time
	logger              *zap.Logger
}

// NewService creates the quiz service.
func NewService(store Store, defaultPassingScore int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:               store,
		defaultPassingScore: defaultPassingScore,
		now:                 time.Now,
		logger:              logger,
	}
}

// QuestionInput is one authored question.
type QuestionInput struct {
	Text          string
	Options       []string
	CorrectOption int
	Points        int
}

// CreateInput is the quiz authoring request.
type CreateInput struct {
	Title               string
	Description         string
	RoomID              *uuid.UUID
	CreatedBy           uuid.UUID
	TimeLimitMinutes    *int
	PassingScorePercent *int
	Questions           []QuestionInput
}

// Create authors a new unpublished quiz.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Quiz, error) {
	if in.Title == "" {
		return nil, apperr.BadRequest("quiz title is required")
	}
	passing := s.defaultPassingScore
	if in.PassingScorePercent != nil {
		passing = *in.PassingScorePercent
	}
	if passing < 0 || passing > 100 {
		return nil, apperr.BadRequest("passing score must be between 0 and 100")
	}

	quiz := &models.Quiz{
		Title:               in.Title,
		Description:         in.Description,
		RoomID:              in.RoomID,
		CreatedBy:           in.CreatedBy,
		TimeLimitMinutes:    in.TimeLimitMinutes,
		PassingScorePercent: passing,
	}
	for i, q := range in.Questions {
		if q.Text == "" {
			return nil, apperr.BadRequest("question text is required")
		}
		if len(q.Options) < 2 {
			return nil, apperr.BadRequest("each question needs at least two options")
		}
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return nil, apperr.BadRequest("correct option is out of range")
		}
		points := q.Points
		if points <= 0 {
			points = 1
		}
		quiz.Questions = append(quiz.Questions, models.Question{
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Points:        points,
			OrderIndex:    i,
		})
	}

	if err := s.store.Create(ctx, quiz); err != nil {
		return nil, apperr.Unexpected("failed to create quiz", err)
	}
	return quiz, nil
}

// Publish makes the quiz submittable. Publication requires at least one
// question and is one-way.
func (s *Service) Publish(ctx context.Context, quizID uuid.UUID) (*models.Quiz, error) {
	quiz, err := s.load(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.IsPublished {
		return quiz, nil
	}
	if len(quiz.Questions) == 0 {
		return nil, apperr.BadRequest("cannot publish a quiz without questions")
	}
	if err := s.store.SetPublished(ctx, quizID, true); err != nil {
		return nil, apperr.Unexpected("failed to publish quiz", err)
	}
	quiz.IsPublished = true
	return quiz, nil
}

// Get returns a quiz. For students the correct options are stripped so the
// payload can go to the client as-is.
func (s *Service) Get(ctx context.Context, quizID uuid.UUID, includeAnswers bool) (*models.Quiz, error) {
	quiz, err := s.load(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !includeAnswers {
		for i := range quiz.Questions {
			quiz.Questions[i].CorrectOption = -1
		}
	}
	return quiz, nil
}

// List returns quizzes, optionally scoped to a room.
func (s *Service) List(ctx context.Context, roomID *uuid.UUID, publishedOnly bool) ([]models.Quiz, error) {
	list, err := s.store.List(ctx, roomID, publishedOnly)
	if err != nil {
		return nil, apperr.Unexpected("failed to list quizzes", err)
	}
	return list, nil
}

// Delete removes a quiz. Existing results survive through their snapshots.
func (s *Service) Delete(ctx context.Context, quizID uuid.UUID) error {
	if _, err := s.load(ctx, quizID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, quizID); err != nil {
		return apperr.Unexpected("failed to delete quiz", err)
	}
	return nil
}

// AnswerInput is one submitted answer.
type AnswerInput struct {
	QuestionID     uuid.UUID
	SelectedOption int
}

// Submit scores a student's answers. The score is the share of correct
// answers rounded to the nearest percent; unanswered questions count as
// wrong. Each student gets exactly one attempt.
func (s *Service) Submit(ctx context.Context, quizID, studentID uuid.UUID, answers []AnswerInput) (*models.QuizResult, error) {
	quiz, err := s.load(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.IsPublished {
		return nil, apperr.BadRequest("quiz is not published")
	}
	done, err := s.store.HasResult(ctx, quizID, studentID)
	if err != nil {
		return nil, apperr.Unexpected("failed to check submission", err)
	}
	if done {
		return nil, apperr.Conflict("quiz already submitted")
	}

	questions := make(map[uuid.UUID]*models.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		questions[quiz.Questions[i].ID] = &quiz.Questions[i]
	}
	selected := make(map[uuid.UUID]int, len(answers))
	for _, a := range answers {
		if _, ok := questions[a.QuestionID]; !ok {
			return nil, apperr.NotFound("question not part of this quiz: " + a.QuestionID.String())
		}
		if _, dup := selected[a.QuestionID]; dup {
			return nil, apperr.BadRequest("duplicate answer for question " + a.QuestionID.String())
		}
		selected[a.QuestionID] = a.SelectedOption
	}

	result := &models.QuizResult{
		QuizID:         quizID,
		StudentID:      studentID,
		TotalQuestions: len(quiz.Questions),
		CompletedAt:    s.now(),
	}
	for _, q := range quiz.Questions {
		sel, answered := selected[q.ID]
		if !answered {
			sel = -1
		}
		correct := answered && sel == q.CorrectOption
		if correct {
			result.CorrectCount++
		}
		result.Answers = append(result.Answers, models.QuizAnswer{
			QuestionID:     q.ID,
			QuestionText:   q.Text,
			SelectedOption: sel,
			CorrectOption:  q.CorrectOption,
			IsCorrect:      correct,
		})
	}
	if result.TotalQuestions > 0 {
		result.ScorePercent = int(math.Round(100 * float64(result.CorrectCount) / float64(result.TotalQuestions)))
	}
	result.Passed = result.ScorePercent >= quiz.PassingScorePercent

	if err := s.store.SaveResult(ctx, result); err != nil {
		if apperr.IsConflict(err) {
			return nil, err
		}
		return nil, apperr.Unexpected("failed to save result", err)
	}
	s.logger.Info("quiz submitted",
		zap.String("quiz_id", quizID.String()),
		zap.String("student_id", studentID.String()),
		zap.Int("score", result.ScorePercent),
		zap.Bool("passed", result.Passed))
	return result, nil
}

// Results returns all submissions of a quiz.
func (s *Service) Results(ctx context.Context, quizID uuid.UUID) ([]models.QuizResult, error) {
	if _, err := s.load(ctx, quizID); err != nil {
		return nil, err
	}
	list, err := s.store.ListResults(ctx, quizID)
	if err != nil {
		return nil, apperr.Unexpected("failed to list results", err)
	}
	return list, nil
}

// StudentResults returns a student's submissions across all quizzes.
func (s *Service) StudentResults(ctx context.Context, studentID uuid.UUID) ([]models.QuizResult, error) {
	list, err := s.store.ListStudentResults(ctx, studentID)
	if err != nil {
		return nil, apperr.Unexpected("failed to list results", err)
	}
	return list, nil
}

func (s *Service) load(ctx context.Context, quizID uuid.UUID) (*models.Quiz, error) {
	quiz, err := s.store.GetByID(ctx, quizID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load quiz", err)
	}
	if quiz == nil {
		return nil, apperr.NotFound("quiz not found")
	}
	return quiz, nil
}
