package rtc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type noopEvents struct{ called bool }

func (n *noopEvents) HandleParticipantJoined(context.Context, string, string) error {
	n.called = true
	return nil
}

func (n *noopEvents) HandleParticipantLeft(context.Context, string, string) error {
	n.called = true
	return nil
}

func (n *noopEvents) HandleCaptureStarted(context.Context, string, string) error {
	n.called = true
	return nil
}

func (n *noopEvents) HandleCaptureEnded(context.Context, string, string, int) error {
	n.called = true
	return nil
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	events := &noopEvents{}
	h := NewWebhookHandler("APIxyzkey", "secretsecretsecretsecretsecret12", events, events, nil)

	router := gin.New()
	router.POST("/api/livekit/webhook", h.Handle)

	body := `{"event":"participant_left","room":{"name":"room-abc"},"participant":{"identity":"ana@example.com"}}`

	// no Authorization header at all
	req := httptest.NewRequest(http.MethodPost, "/api/livekit/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, events.called)

	// garbage token
	req = httptest.NewRequest(http.MethodPost, "/api/livekit/webhook", strings.NewReader(body))
	req.Header.Set("Authorization", "not-a-valid-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, events.called)
}
