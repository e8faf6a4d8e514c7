package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/queue"
)

// RoomSource resolves rooms for summary requests.
type RoomSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// ParticipantSource lists a room's participants for summary requests.
type ParticipantSource interface {
	FindByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
}

// Summarizer forwards completed sessions to the external summary generator.
// Without a configured endpoint it only logs, so ending a session never
// depends on the generator being up.
type Summarizer struct {
	rooms        RoomSource
	participants ParticipantSource
	endpoint     string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewSummarizer creates a summary job handler.
func NewSummarizer(rooms RoomSource, participants ParticipantSource, endpoint string, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		rooms:        rooms,
		participants: participants,
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// GenerateSummary handles one session summary job.
func (s *Summarizer) GenerateSummary(ctx context.Context, payload queue.SessionSummaryPayload) error {
	room, err := s.rooms.GetByID(ctx, payload.RoomID)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return fmt.Errorf("unknown room %s", payload.RoomID)
	}
	participants, err := s.participants.FindByRoom(ctx, payload.RoomID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}

	if s.endpoint == "" {
		s.logger.Info("summary generator not configured, skipping",
			zap.String("room_id", room.ID.String()),
			zap.Int("participants", len(participants)))
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"room":         room,
		"participants": participants,
	})
	if err != nil {
		return fmt.Errorf("marshal summary request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("summary request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("summary generator status: %d", resp.StatusCode)
	}
	s.logger.Info("session summary requested", zap.String("room_id", room.ID.String()))
	return nil
}
