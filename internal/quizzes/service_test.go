package quizzes

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/apperr"
)

type resultKey struct{ quiz, student uuid.UUID }

type fakeQuizStore struct {
	quizzes map[uuid.UUID]*models.Quiz
	results map[resultKey]*models.QuizResult
	// hideResults makes HasResult blind, the way a concurrent writer is
	// invisible to the pre-check until its insert lands.
	hideResults bool
}

func newFakeQuizStore() *fakeQuizStore {
	return &fakeQuizStore{
		quizzes: make(map[uuid.UUID]*models.Quiz),
		results: make(map[resultKey]*models.QuizResult),
	}
}

func (f *fakeQuizStore) Create(_ context.Context, quiz *models.Quiz) error {
	quiz.ID = uuid.New()
	for i := range quiz.Questions {
		quiz.Questions[i].ID = uuid.New()
		quiz.Questions[i].QuizID = quiz.ID
	}
	cp := *quiz
	f.quizzes[quiz.ID] = &cp
	return nil
}

func (f *fakeQuizStore) GetByID(_ context.Context, id uuid.UUID) (*models.Quiz, error) {
	quiz, ok := f.quizzes[id]
	if !ok {
		return nil, nil
	}
	cp := *quiz
	cp.Questions = append([]models.Question(nil), quiz.Questions...)
	return &cp, nil
}

func (f *fakeQuizStore) List(_ context.Context, roomID *uuid.UUID, publishedOnly bool) ([]models.Quiz, error) {
	var list []models.Quiz
	for _, quiz := range f.quizzes {
		if publishedOnly && !quiz.IsPublished {
			continue
		}
		if roomID != nil && (quiz.RoomID == nil || *quiz.RoomID != *roomID) {
			continue
		}
		list = append(list, *quiz)
	}
	return list, nil
}

func (f *fakeQuizStore) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	f.quizzes[id].IsPublished = published
	return nil
}

func (f *fakeQuizStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.quizzes, id)
	return nil
}

func (f *fakeQuizStore) HasResult(_ context.Context, quizID, studentID uuid.UUID) (bool, error) {
	if f.hideResults {
		return false, nil
	}
	_, ok := f.results[resultKey{quizID, studentID}]
	return ok, nil
}

func (f *fakeQuizStore) SaveResult(_ context.Context, result *models.QuizResult) error {
	key := resultKey{result.QuizID, result.StudentID}
	if _, ok := f.results[key]; ok {
		return apperr.Conflict("quiz already submitted")
	}
	result.ID = uuid.New()
	cp := *result
	f.results[key] = &cp
	return nil
}

func (f *fakeQuizStore) ListResults(_ context.Context, quizID uuid.UUID) ([]models.QuizResult, error) {
	var list []models.QuizResult
	for key, res := range f.results {
		if key.quiz == quizID {
			list = append(list, *res)
		}
	}
	return list, nil
}

func (f *fakeQuizStore) ListStudentResults(_ context.Context, studentID uuid.UUID) ([]models.QuizResult, error) {
	var list []models.QuizResult
	for key, res := range f.results {
		if key.student == studentID {
			list = append(list, *res)
		}
	}
	return list, nil
}

func newQuizFixture() (*Service, *fakeQuizStore) {
	store := newFakeQuizStore()
	return NewService(store, 60, nil), store
}

func questionInputs(n int) []QuestionInput {
	qs := make([]QuestionInput, n)
	for i := range qs {
		qs[i] = QuestionInput{
			Text:          "question",
			Options:       []string{"a", "b", "c"},
			CorrectOption: 0,
		}
	}
	return qs
}

// answerAll returns answers selecting the correct option for the first
// `correct` questions and a wrong option for the rest.
func answerAll(quiz *models.Quiz, correct int) []AnswerInput {
	var answers []AnswerInput
	for i, q := range quiz.Questions {
		sel := q.CorrectOption
		if i >= correct {
			sel = q.CorrectOption + 1
		}
		answers = append(answers, AnswerInput{QuestionID: q.ID, SelectedOption: sel})
	}
	return answers
}

func createPublished(t *testing.T, svc *Service, questions int, passing *int) *models.Quiz {
	t.Helper()
	quiz, err := svc.Create(context.Background(), CreateInput{
		Title:               "lesson check",
		CreatedBy:           uuid.New(),
		PassingScorePercent: passing,
		Questions:           questionInputs(questions),
	})
	require.NoError(t, err)
	quiz, err = svc.Publish(context.Background(), quiz.ID)
	require.NoError(t, err)
	return quiz
}

func TestCreateQuizValidation(t *testing.T) {
	svc, _ := newQuizFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Title: ""})
	assert.True(t, apperr.IsBadRequest(err))

	_, err = svc.Create(ctx, CreateInput{Title: "q", Questions: []QuestionInput{
		{Text: "one option", Options: []string{"a"}, CorrectOption: 0},
	}})
	assert.True(t, apperr.IsBadRequest(err))

	_, err = svc.Create(ctx, CreateInput{Title: "q", Questions: []QuestionInput{
		{Text: "oob", Options: []string{"a", "b"}, CorrectOption: 2},
	}})
	assert.True(t, apperr.IsBadRequest(err))

	bad := 101
	_, err = svc.Create(ctx, CreateInput{Title: "q", PassingScorePercent: &bad})
	assert.True(t, apperr.IsBadRequest(err))
}

func TestCreateQuizAppliesDefaults(t *testing.T) {
	svc, _ := newQuizFixture()
	quiz, err := svc.Create(context.Background(), CreateInput{
		Title: "defaults", Questions: questionInputs(2),
	})
	require.NoError(t, err)
	assert.Equal(t, 60, quiz.PassingScorePercent)
	assert.False(t, quiz.IsPublished)
	assert.Equal(t, 1, quiz.Questions[0].Points)
	assert.Equal(t, 0, quiz.Questions[0].OrderIndex)
	assert.Equal(t, 1, quiz.Questions[1].OrderIndex)
}

func TestPublishRequiresQuestions(t *testing.T) {
	svc, _ := newQuizFixture()
	ctx := context.Background()

	empty, err := svc.Create(ctx, CreateInput{Title: "empty"})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, empty.ID)
	assert.True(t, apperr.IsBadRequest(err))

	quiz, err := svc.Create(ctx, CreateInput{Title: "full", Questions: questionInputs(1)})
	require.NoError(t, err)
	published, err := svc.Publish(ctx, quiz.ID)
	require.NoError(t, err)
	assert.True(t, published.IsPublished)

	// re-publishing is a no-op success
	_, err = svc.Publish(ctx, quiz.ID)
	assert.NoError(t, err)
}

func TestSubmitScoring(t *testing.T) {
	tests := []struct {
		name      string
		questions int
		correct   int
		passing   int
		wantScore int
		wantPass  bool
	}{
		{"all correct", 4, 4, 60, 100, true},
		{"none correct", 4, 0, 60, 0, false},
		{"three of five at sixty", 5, 3, 60, 60, true},
		{"three of five at sixty-one", 5, 3, 61, 60, false},
		{"one of three rounds up", 3, 1, 60, 33, false},
		{"two of three rounds", 3, 2, 60, 67, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newQuizFixture()
			quiz := createPublished(t, svc, tt.questions, &tt.passing)

			result, err := svc.Submit(context.Background(), quiz.ID, uuid.New(), answerAll(quiz, tt.correct))
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, result.ScorePercent)
			assert.Equal(t, tt.wantPass, result.Passed)
			assert.Equal(t, tt.correct, result.CorrectCount)
			assert.Equal(t, tt.questions, result.TotalQuestions)
			assert.Len(t, result.Answers, tt.questions)
		})
	}
}

func TestSubmitUnansweredCountAsWrong(t *testing.T) {
	svc, _ := newQuizFixture()
	quiz := createPublished(t, svc, 4, nil)

	// answer only the first question, correctly
	answers := answerAll(quiz, 1)[:1]
	result, err := svc.Submit(context.Background(), quiz.ID, uuid.New(), answers)
	require.NoError(t, err)
	assert.Equal(t, 25, result.ScorePercent)
	assert.Equal(t, 4, result.TotalQuestions)
	assert.Len(t, result.Answers, 4)
}

func TestSubmitGuards(t *testing.T) {
	svc, _ := newQuizFixture()
	ctx := context.Background()
	student := uuid.New()

	unpublished, err := svc.Create(ctx, CreateInput{Title: "draft", Questions: questionInputs(1)})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, unpublished.ID, student, nil)
	assert.True(t, apperr.IsBadRequest(err))

	quiz := createPublished(t, svc, 2, nil)

	// foreign question id
	_, err = svc.Submit(ctx, quiz.ID, student, []AnswerInput{{QuestionID: uuid.New()}})
	assert.True(t, apperr.IsNotFound(err))

	// duplicate answer for the same question
	dup := quiz.Questions[0].ID
	_, err = svc.Submit(ctx, quiz.ID, student, []AnswerInput{
		{QuestionID: dup, SelectedOption: 0},
		{QuestionID: dup, SelectedOption: 1},
	})
	assert.True(t, apperr.IsBadRequest(err))

	// first submission succeeds, second conflicts
	_, err = svc.Submit(ctx, quiz.ID, student, answerAll(quiz, 2))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, quiz.ID, student, answerAll(quiz, 2))
	assert.True(t, apperr.IsConflict(err))

	_, err = svc.Submit(ctx, uuid.New(), student, nil)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSubmitLostRaceStaysConflict(t *testing.T) {
	svc, store := newQuizFixture()
	quiz := createPublished(t, svc, 2, nil)
	student := uuid.New()

	_, err := svc.Submit(context.Background(), quiz.ID, student, answerAll(quiz, 2))
	require.NoError(t, err)

	// Two submissions racing past the duplicate pre-check both reach the
	// insert; the unique index rejects the loser, and that must still read
	// as a conflict rather than a generic failure.
	store.hideResults = true
	_, err = svc.Submit(context.Background(), quiz.ID, student, answerAll(quiz, 2))
	assert.True(t, apperr.IsConflict(err))
}

func TestSubmitSnapshotsAnswers(t *testing.T) {
	svc, _ := newQuizFixture()
	quiz := createPublished(t, svc, 2, nil)

	result, err := svc.Submit(context.Background(), quiz.ID, uuid.New(), answerAll(quiz, 1))
	require.NoError(t, err)

	for i, a := range result.Answers {
		assert.Equal(t, quiz.Questions[i].Text, a.QuestionText)
		assert.Equal(t, quiz.Questions[i].CorrectOption, a.CorrectOption)
	}
	assert.True(t, result.Answers[0].IsCorrect)
	assert.False(t, result.Answers[1].IsCorrect)
}

func TestGetStripsCorrectOptionsForStudents(t *testing.T) {
	svc, _ := newQuizFixture()
	quiz := createPublished(t, svc, 2, nil)

	student, err := svc.Get(context.Background(), quiz.ID, false)
	require.NoError(t, err)
	for _, q := range student.Questions {
		assert.Equal(t, -1, q.CorrectOption)
	}

	staff, err := svc.Get(context.Background(), quiz.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, staff.Questions[0].CorrectOption)
}

func TestResultsListing(t *testing.T) {
	svc, store := newQuizFixture()
	ctx := context.Background()
	quiz := createPublished(t, svc, 2, nil)
	student := uuid.New()

	_, err := svc.Submit(ctx, quiz.ID, student, answerAll(quiz, 2))
	require.NoError(t, err)

	byQuiz, err := svc.Results(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Len(t, byQuiz, 1)

	byStudent, err := svc.StudentResults(ctx, student)
	require.NoError(t, err)
	assert.Len(t, byStudent, 1)

	// deleting the quiz keeps the stored result
	require.NoError(t, svc.Delete(ctx, quiz.ID))
	assert.Len(t, store.results, 1)
}
