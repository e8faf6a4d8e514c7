package rtc

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingua-hub/backend/internal/middleware"
	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/response"
)

// TokenAudit reads the issued-credential trail for a room.
type TokenAudit interface {
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.AccessToken, error)
}

// Handler exposes credential and room-info endpoints.
type Handler struct {
	issuer *Issuer
	client *RoomClient
	tokens TokenAudit
	logger *zap.Logger
}

// NewHandler creates an RTC handler.
func NewHandler(issuer *Issuer, client *RoomClient, tokens TokenAudit, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, client: client, tokens: tokens, logger: logger}
}

// TokenRequest is the body for POST /api/livekit/token.
type TokenRequest struct {
	RoomID uuid.UUID `json:"room_id" binding:"required"`
}

// GetToken handles POST /api/livekit/token. Returns a fresh credential for
// the authenticated user without going through the join flow (reconnects).
func (h *Handler) GetToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	cred, err := h.issuer.Issue(c.Request.Context(), req.RoomID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, cred)
}

// GetRoomInfo handles GET /api/livekit/rooms/:name. Reports the transport
// state of an active room.
func (h *Handler) GetRoomInfo(c *gin.Context) {
	name := c.Param("name")
	info, err := h.client.GetRoomInfo(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("room info lookup failed", zap.String("room", name), zap.Error(err))
		response.Internal(c, "failed to query room info")
		return
	}
	if info == nil {
		response.NotFound(c, "room is not active")
		return
	}

	participants, err := h.client.ListParticipants(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("participant listing failed", zap.String("room", name), zap.Error(err))
		response.Internal(c, "failed to query room info")
		return
	}
	identities := make([]string, 0, len(participants))
	for _, p := range participants {
		identities = append(identities, p.Identity)
	}

	response.OK(c, gin.H{
		"name":             info.Name,
		"sid":              info.Sid,
		"num_participants": info.NumParticipants,
		"creation_time":    info.CreationTime,
		"participants":     identities,
	})
}

// MuteTrackRequest is the body for POST /api/livekit/rooms/:name/mute-track.
type MuteTrackRequest struct {
	Identity string `json:"identity" binding:"required"`
	TrackSid string `json:"track_sid" binding:"required"`
	Muted    *bool  `json:"muted" binding:"required"`
}

// MuteTrack handles POST /api/livekit/rooms/:name/mute-track. Hard-mutes a
// published track at the transport level, unlike the registry-level mute flag
// which only asks the client to comply.
func (h *Handler) MuteTrack(c *gin.Context) {
	var req MuteTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	name := c.Param("name")
	track, err := h.client.MutePublishedTrack(c.Request.Context(), name, req.Identity, req.TrackSid, *req.Muted)
	if err != nil {
		h.logger.Error("track mute failed", zap.String("room", name), zap.Error(err))
		response.Internal(c, "failed to mute track")
		return
	}
	response.OK(c, gin.H{"track_sid": track.Sid, "muted": track.Muted})
}

// ListRoomCredentials handles GET /api/livekit/credentials/:roomId. Returns
// the audit trail of credentials issued for a room, token values excluded.
func (h *Handler) ListRoomCredentials(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	rows, err := h.tokens.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("credential audit lookup failed",
			zap.String("room_id", roomID.String()), zap.Error(err))
		response.Internal(c, "failed to list credentials")
		return
	}
	response.OK(c, rows)
}
