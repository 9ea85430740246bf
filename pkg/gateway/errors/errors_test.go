package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeInvalidRequest, "prompt is required", nil)
	assert.Equal(t, "INVALID_REQUEST: prompt is required", err.Error())

	cause := stderrors.New("connection refused")
	err = New(ErrCodeExecuteFailed, "failed to call execution endpoint", cause)
	assert.Equal(t, "EXECUTE_FAILED: failed to call execution endpoint (caused by: connection refused)", err.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New(ErrCodeTranscript, "failed to append event", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), cause)

	var appErr *AppError
	assert.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &appErr)
	assert.Equal(t, ErrCodeTranscript, appErr.Code)
}
