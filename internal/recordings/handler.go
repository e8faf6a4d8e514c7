package recordings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lingua-hub/backend/internal/middleware"
	"github.com/lingua-hub/backend/pkg/response"
)

// StartRequest is the body for POST /recordings/start.
type StartRequest struct {
	RoomID    string `json:"room_id" binding:"required,uuid"`
	CaptureID string `json:"capture_id" binding:"required"`
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a recording handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Start handles POST /recordings/start (professor or admin).
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	roomID, _ := uuid.Parse(req.RoomID)

	rec, err := h.service.Start(c.Request.Context(), roomID, req.CaptureID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, rec)
}

// Upload handles POST /recordings/upload: multipart form with a "capture_id"
// field and the media in a "file" field, streamed straight to storage.
func (h *Handler) Upload(c *gin.Context) {
	captureID := c.PostForm("capture_id")
	if captureID == "" {
		response.BadRequest(c, "missing capture_id field")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file field")
		return
	}
	src, err := file.Open()
	if err != nil {
		response.BadRequest(c, "failed to open upload")
		return
	}
	defer src.Close()

	rec, err := h.service.Upload(c.Request.Context(), captureID, src, file.Size, nil)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, rec)
}

// GetByID handles GET /recordings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, rec)
}

// ListByRoom handles GET /recordings/room/:roomId.
func (h *Handler) ListByRoom(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	list, err := h.service.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// ListByStudent handles GET /recordings/student/:studentId: completed
// recordings of sessions the student attended. Students may only query their
// own id.
func (h *Handler) ListByStudent(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("studentId"))
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	role := c.MustGet(middleware.ContextUserRole).(string)
	if role == "student" {
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		if userID != studentID {
			response.Forbidden(c, "students can only list their own recordings")
			return
		}
	}
	list, err := h.service.ListByStudent(c.Request.Context(), studentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// PlaybackURL handles GET /recordings/:id/playback-url.
func (h *Handler) PlaybackURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	url, expiresAt, err := h.service.PlaybackURL(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"url": url, "expires_at": expiresAt})
}

// Delete handles DELETE /recordings/:id (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}
