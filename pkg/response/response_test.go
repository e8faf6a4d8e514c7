package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-hub/backend/pkg/apperr"
)

func TestFromErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not found", apperr.NotFound("room not found"), http.StatusNotFound, "room not found"},
		{"bad request", apperr.BadRequest("room is not live"), http.StatusBadRequest, "room is not live"},
		{"conflict", apperr.Conflict("quiz already submitted"), http.StatusConflict, "quiz already submitted"},
		{"unexpected", apperr.Unexpected("db down", errors.New("pg")), http.StatusInternalServerError, "internal server error"},
		{"unclassified", errors.New("raw"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			FromError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Error)
		})
	}
}
