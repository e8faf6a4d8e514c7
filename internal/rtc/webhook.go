package rtc

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/webhook"
	"go.uber.org/zap"

	"github.com/lingua-hub/backend/pkg/response"
)

// SessionEvents receives participant presence events from the provider.
type SessionEvents interface {
	HandleParticipantJoined(ctx context.Context, livekitRoomName, identity string) error
	HandleParticipantLeft(ctx context.Context, livekitRoomName, identity string) error
}

// CaptureEvents receives recording capture events from the provider.
type CaptureEvents interface {
	HandleCaptureStarted(ctx context.Context, livekitRoomName, captureID string) error
	HandleCaptureEnded(ctx context.Context, captureID, fileURL string, durationSeconds int) error
}

// WebhookHandler verifies and dispatches LiveKit webhook events. Payloads are
// only trusted after the signature in the Authorization header checks out.
type WebhookHandler struct {
	verifier auth.KeyProvider
	sessions SessionEvents
	captures CaptureEvents
	logger   *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(apiKey, apiSecret string, sessions SessionEvents, captures CaptureEvents, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		verifier: auth.NewSimpleKeyProvider(apiKey, apiSecret),
		sessions: sessions,
		captures: captures,
		logger:   logger,
	}
}

// Handle handles POST /api/livekit/webhook.
func (h *WebhookHandler) Handle(c *gin.Context) {
	event, err := webhook.ReceiveWebhookEvent(c.Request, h.verifier)
	if err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		response.Unauthorized(c, "invalid webhook signature")
		return
	}

	ctx := c.Request.Context()
	switch event.GetEvent() {
	case webhook.EventParticipantJoined:
		if event.Room != nil && event.Participant != nil {
			if err := h.sessions.HandleParticipantJoined(ctx, event.Room.Name, event.Participant.Identity); err != nil {
				h.logger.Warn("participant joined handling failed",
					zap.String("room", event.Room.Name),
					zap.String("identity", event.Participant.Identity),
					zap.Error(err))
			}
		}
	case webhook.EventParticipantLeft:
		if event.Room != nil && event.Participant != nil {
			if err := h.sessions.HandleParticipantLeft(ctx, event.Room.Name, event.Participant.Identity); err != nil {
				h.logger.Warn("participant left handling failed",
					zap.String("room", event.Room.Name),
					zap.String("identity", event.Participant.Identity),
					zap.Error(err))
			}
		}
	case webhook.EventEgressStarted:
		if info := event.EgressInfo; info != nil {
			if err := h.captures.HandleCaptureStarted(ctx, info.RoomName, info.EgressId); err != nil {
				h.logger.Warn("capture start handling failed",
					zap.String("capture_id", info.EgressId), zap.Error(err))
			}
		}
	case webhook.EventEgressEnded:
		if info := event.EgressInfo; info != nil {
			fileURL := ""
			duration := 0
			if len(info.FileResults) > 0 {
				f := info.FileResults[0]
				fileURL = f.Location
				duration = int(f.Duration / 1e9) // ns -> s
			}
			if err := h.captures.HandleCaptureEnded(ctx, info.EgressId, fileURL, duration); err != nil {
				h.logger.Warn("capture end handling failed",
					zap.String("capture_id", info.EgressId), zap.Error(err))
			}
		}
	default:
		h.logger.Debug("webhook event ignored", zap.String("event", event.GetEvent()))
	}

	response.OK(c, gin.H{"received": true})
}
