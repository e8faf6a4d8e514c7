package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
	assert.Equal(t, KindBadRequest, KindOf(BadRequest("bad")))
	assert.Equal(t, KindConflict, KindOf(Conflict("dup")))
	assert.Equal(t, KindUnexpected, KindOf(Unexpected("boom", errors.New("cause"))))
	assert.Equal(t, KindUnexpected, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnexpected, KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("missing"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
}

func TestUnexpectedPreservesCause(t *testing.T) {
	cause := errors.New("pg: connection refused")
	err := Unexpected("failed to load room", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "failed to load room")
	assert.Contains(t, err.Error(), "connection refused")
}
