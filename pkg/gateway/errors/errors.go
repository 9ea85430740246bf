// Package errors provides application-level errors carrying a stable code,
// so transports can map failures to structured payloads without string
// matching.
package errors

import "fmt"

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeWorkspaceCreate  = "WORKSPACE_PROVISION_FAILED"
	ErrCodeWorkspaceDestroy = "WORKSPACE_DESTROY_FAILED"
	ErrCodeRuntimeStream    = "RUNTIME_STREAM_FAILED"
	ErrCodeTranscript       = "TRANSCRIPT_FAILED"
	ErrCodeUnsupported      = "UNSUPPORTED_OPERATION"
	ErrCodeExecuteFailed    = "EXECUTE_FAILED"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeFileOperation    = "FILE_OPERATION_FAILED"
)
