package rooms

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lingua-hub/backend/internal/middleware"
	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/response"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// CreateRequest is the body for POST /rooms.
type CreateRequest struct {
	Name            string   `json:"name" binding:"required"`
	Language        string   `json:"language" binding:"required"`
	Level           string   `json:"level"`
	Objective       string   `json:"objective"`
	ScheduledAt     string   `json:"scheduled_at" binding:"required"`
	DurationMinutes int      `json:"duration_minutes" binding:"required"`
	MaxParticipants int      `json:"max_participants"`
	AnimatorType    string   `json:"animator_type"`
	ProfessorID     *string  `json:"professor_id"`
	InvitedStudents []string `json:"invited_students"`
}

// Handler handles room HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a room handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /rooms (professor or admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	scheduledAt, err := parseTime(req.ScheduledAt)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_at")
		return
	}

	in := CreateInput{
		Name:            req.Name,
		Language:        req.Language,
		Level:           req.Level,
		Objective:       req.Objective,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		MaxParticipants: req.MaxParticipants,
		AnimatorType:    models.AnimatorType(req.AnimatorType),
	}
	if req.ProfessorID != nil {
		id, err := uuid.Parse(*req.ProfessorID)
		if err != nil {
			response.BadRequest(c, "invalid professor_id")
			return
		}
		in.ProfessorID = &id
	}
	for _, idStr := range req.InvitedStudents {
		id, err := uuid.Parse(idStr)
		if err != nil {
			response.BadRequest(c, "invalid student id: "+idStr)
			return
		}
		in.InvitedStudents = append(in.InvitedStudents, id)
	}

	room, warning, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if warning != "" {
		response.Created(c, gin.H{"room": room, "warning": warning})
		return
	}
	response.Created(c, room)
}

// GetByID handles GET /rooms/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	room, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, room)
}

// List handles GET /rooms with optional filters.
func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Language: c.Query("language"),
		Level:    c.Query("level"),
		Search:   c.Query("search"),
	}
	if s := c.Query("status"); s != "" {
		f.Status = models.RoomStatus(s)
	}
	if s := c.Query("animator_type"); s != "" {
		f.AnimatorType = models.AnimatorType(s)
	}
	if s := c.Query("professor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid professor_id")
			return
		}
		f.ProfessorID = &id
	}
	if s := c.Query("from"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			response.BadRequest(c, "invalid from")
			return
		}
		f.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			response.BadRequest(c, "invalid to")
			return
		}
		f.To = &t
	}
	list, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /rooms/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	var req struct {
		Name            *string `json:"name"`
		Objective       *string `json:"objective"`
		ScheduledAt     *string `json:"scheduled_at"`
		DurationMinutes *int    `json:"duration_minutes"`
		MaxParticipants *int    `json:"max_participants"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}
	in := UpdateInput{
		Name:            req.Name,
		Objective:       req.Objective,
		DurationMinutes: req.DurationMinutes,
		MaxParticipants: req.MaxParticipants,
	}
	if req.ScheduledAt != nil {
		t, err := parseTime(*req.ScheduledAt)
		if err != nil {
			response.BadRequest(c, "invalid scheduled_at")
			return
		}
		in.ScheduledAt = &t
	}
	room, err := h.service.Update(c.Request.Context(), id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, room)
}

// Delete handles DELETE /rooms/:id (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}

// Join handles POST /rooms/:id/join. The credential identity and token come
// back in the body; the room may flip to live as a side effect.
func (h *Handler) Join(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	cred, err := h.service.Join(c.Request.Context(), id, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, cred)
}

// Start handles POST /rooms/:id/start (professor or admin).
func (h *Handler) Start(c *gin.Context) {
	h.transition(c, h.service.Start)
}

// End handles POST /rooms/:id/end (professor or admin).
func (h *Handler) End(c *gin.Context) {
	h.transition(c, h.service.End)
}

// Cancel handles POST /rooms/:id/cancel (professor or admin).
func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	if err := op(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	room, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, room)
}

// Participants handles GET /rooms/:id/participants.
func (h *Handler) Participants(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	list, err := h.service.Participants(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// GetByLivekitName handles GET /rooms/livekit/:name.
func (h *Handler) GetByLivekitName(c *gin.Context) {
	room, err := h.service.GetByLivekitName(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, room)
}

// MuteRequest is the body for POST /rooms/:id/participants/mute.
type MuteRequest struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
	Muted     *bool  `json:"muted" binding:"required"`
}

// Mute handles POST /rooms/:id/participants/mute (professor or admin).
func (h *Handler) Mute(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	studentID, _ := uuid.Parse(req.StudentID)

	p, err := h.service.Mute(c.Request.Context(), roomID, studentID, *req.Muted)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, p)
}

// Ping handles POST /rooms/:id/participants/ping (professor or admin).
func (h *Handler) Ping(c *gin.Context) {
	roomID, studentID, ok := h.participantTarget(c)
	if !ok {
		return
	}
	p, err := h.service.Ping(c.Request.Context(), roomID, studentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, p)
}

// Kick handles POST /rooms/:id/participants/kick (professor or admin).
func (h *Handler) Kick(c *gin.Context) {
	roomID, studentID, ok := h.participantTarget(c)
	if !ok {
		return
	}
	if err := h.service.Kick(c.Request.Context(), roomID, studentID); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}

// ClearPing handles POST /rooms/:id/participants/clear-ping.
func (h *Handler) ClearPing(c *gin.Context) {
	roomID, studentID, ok := h.participantTarget(c)
	if !ok {
		return
	}
	if err := h.service.ClearPing(c.Request.Context(), roomID, studentID); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) participantTarget(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return uuid.Nil, uuid.Nil, false
	}
	var req struct {
		StudentID string `json:"student_id" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	studentID, _ := uuid.Parse(req.StudentID)
	return roomID, studentID, true
}
