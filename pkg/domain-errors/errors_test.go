package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrors(t *testing.T) {
	t.Run("HasCode finds code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeNotFound, "home not found"))
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeForbidden))
	})

	t.Run("Wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load work record")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to load work record: connection reset", err.Error())
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, IsRecoverable(errors.New("boom")))
		assert.True(t, IsRecoverable(New(CodeStorageConflict, "retry")))
	})
}

func TestToHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeValidation:             http.StatusBadRequest,
		CodeForbidden:              http.StatusForbidden,
		CodeEmailMismatch:          http.StatusForbidden,
		CodeNotFound:               http.StatusNotFound,
		CodeInvalidStateTransition: http.StatusConflict,
		CodeHomeAlreadyClaimed:     http.StatusConflict,
		CodeDuplicateInvitation:    http.StatusConflict,
		CodeStorageConflict:        http.StatusConflict,
		CodeExpired:                http.StatusGone,
		CodeInternal:               http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
