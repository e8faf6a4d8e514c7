package quizzes

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lingua-hub/backend/internal/middleware"
	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/response"
)

// CreateRequest is the body for POST /quizzes.
type CreateRequest struct {
	Title               string  `json:"title" binding:"required"`
	Description         string  `json:"description"`
	RoomID              *string `json:"room_id"`
	TimeLimitMinutes    *int    `json:"time_limit_minutes"`
	PassingScorePercent *int    `json:"passing_score_percent"`
	Questions           []struct {
		Text          string   `json:"text" binding:"required"`
		Options       []string `json:"options" binding:"required"`
		CorrectOption int      `json:"correct_option"`
		Points        int      `json:"points"`
	} `json:"questions"`
}

// SubmitRequest is the body for POST /quizzes/:id/submit.
type SubmitRequest struct {
	Answers []struct {
		QuestionID     string `json:"question_id" binding:"required,uuid"`
		SelectedOption int    `json:"selected_option"`
	} `json:"answers" binding:"required"`
}

// Handler handles quiz HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a quiz handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /quizzes (professor or admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	in := CreateInput{
		Title:               req.Title,
		Description:         req.Description,
		CreatedBy:           userID,
		TimeLimitMinutes:    req.TimeLimitMinutes,
		PassingScorePercent: req.PassingScorePercent,
	}
	if req.RoomID != nil {
		id, err := uuid.Parse(*req.RoomID)
		if err != nil {
			response.BadRequest(c, "invalid room_id")
			return
		}
		in.RoomID = &id
	}
	for _, q := range req.Questions {
		in.Questions = append(in.Questions, QuestionInput{
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Points:        q.Points,
		})
	}

	quiz, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, quiz)
}

// Publish handles POST /quizzes/:id/publish (professor or admin).
func (h *Handler) Publish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	quiz, err := h.service.Publish(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, quiz)
}

// GetByID handles GET /quizzes/:id. Students never see the correct options.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	role := c.MustGet(middleware.ContextUserRole).(string)
	includeAnswers := role == string(models.RoleAdmin) || role == string(models.RoleProfessor)

	quiz, err := h.service.Get(c.Request.Context(), id, includeAnswers)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, quiz)
}

// List handles GET /quizzes with optional ?room_id= filter. Students only see
// published quizzes.
func (h *Handler) List(c *gin.Context) {
	var roomID *uuid.UUID
	if s := c.Query("room_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid room_id")
			return
		}
		roomID = &id
	}
	role := c.MustGet(middleware.ContextUserRole).(string)
	publishedOnly := role == string(models.RoleStudent)

	list, err := h.service.List(c.Request.Context(), roomID, publishedOnly)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /quizzes/:id (professor or admin).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}

// Submit handles POST /quizzes/:id/submit (student).
func (h *Handler) Submit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	answers := make([]AnswerInput, 0, len(req.Answers))
	for _, a := range req.Answers {
		qid, err := uuid.Parse(a.QuestionID)
		if err != nil {
			response.BadRequest(c, "invalid question_id")
			return
		}
		answers = append(answers, AnswerInput{QuestionID: qid, SelectedOption: a.SelectedOption})
	}

	result, err := h.service.Submit(c.Request.Context(), id, userID, answers)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, result)
}

// Results handles GET /quizzes/:id/results (professor or admin).
func (h *Handler) Results(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	list, err := h.service.Results(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// StudentResults handles GET /quizzes/results/student/:id. Students may only
// query their own results.
func (h *Handler) StudentResults(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	role := c.MustGet(middleware.ContextUserRole).(string)
	if role == string(models.RoleStudent) {
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		if userID != studentID {
			response.Forbidden(c, "students can only view their own results")
			return
		}
	}
	list, err := h.service.StudentResults(c.Request.Context(), studentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}
