// Package errors provides the coded error taxonomy of the gateway core.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors for handling and reporting. Codes are stable
// strings that clients may rely on.
type ErrorCode string

const (
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeOperationNotAllowed   ErrorCode = "OPERATION_NOT_ALLOWED"
	CodeLoadFailed            ErrorCode = "LOAD_FAILED"
	CodeLocalSaveFailed       ErrorCode = "LOCAL_SAVE_FAILED"
	CodeUploadFailed          ErrorCode = "UPLOAD_FAILED"
	CodeSyncThresholdExceeded ErrorCode = "SYNC_THRESHOLD_EXCEEDED"
	CodeValidation            ErrorCode = "VALIDATION"
	CodeConfiguration         ErrorCode = "CONFIG"
	CodeInternal              ErrorCode = "INTERNAL"
)

// Sentinel errors, one per code. A *GatewayError matches the sentinel of its
// code under errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrOperationNotAllowed   = errors.New("operation not allowed")
	ErrLoadFailed            = errors.New("load failed")
	ErrLocalSaveFailed       = errors.New("local save failed")
	ErrUploadFailed          = errors.New("upload failed")
	ErrSyncThresholdExceeded = errors.New("sync threshold exceeded")
	ErrValidation            = errors.New("validation failed")
	ErrConfiguration         = errors.New("invalid configuration")
)

var sentinels = map[ErrorCode]error{
	CodeNotFound:              ErrNotFound,
	CodeOperationNotAllowed:   ErrOperationNotAllowed,
	CodeLoadFailed:            ErrLoadFailed,
	CodeLocalSaveFailed:       ErrLocalSaveFailed,
	CodeUploadFailed:          ErrUploadFailed,
	CodeSyncThresholdExceeded: ErrSyncThresholdExceeded,
	CodeValidation:            ErrValidation,
	CodeConfiguration:         ErrConfiguration,
}

// GatewayError wraps errors with a code and additional context for debugging
// and handling.
type GatewayError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for e's code.
func (e *GatewayError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// NewError creates a new GatewayError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
// This allows for method chaining when adding multiple context values.
func WithContext(err *GatewayError, key string, value interface{}) *GatewayError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// NotFound reports a missing cache entry, stack or project.
func NotFound(format string, args ...any) *GatewayError {
	return NewError(CodeNotFound, fmt.Sprintf(format, args...), nil)
}

// NotAllowed reports a declined operation.
func NotAllowed(format string, args ...any) *GatewayError {
	return NewError(CodeOperationNotAllowed, fmt.Sprintf(format, args...), nil)
}

// LoadFailed wraps a loader failure.
func LoadFailed(cause error, format string, args ...any) *GatewayError {
	return NewError(CodeLoadFailed, fmt.Sprintf(format, args...), cause)
}

// LocalSaveFailed wraps a local persistence failure.
func LocalSaveFailed(cause error, format string, args ...any) *GatewayError {
	return NewError(CodeLocalSaveFailed, fmt.Sprintf(format, args...), cause)
}

// UploadFailed wraps a remote upload failure.
func UploadFailed(cause error, format string, args ...any) *GatewayError {
	return NewError(CodeUploadFailed, fmt.Sprintf(format, args...), cause)
}

// ThresholdExceeded reports a payload that is too large to push automatically.
func ThresholdExceeded(size, limit int64) *GatewayError {
	err := NewError(CodeSyncThresholdExceeded,
		fmt.Sprintf("project size %d bytes exceeds automatic sync threshold of %d bytes", size, limit), nil)
	WithContext(err, "size", size)
	WithContext(err, "threshold", limit)
	return err
}

// CodeOf returns the code of the first GatewayError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}

// IsDeclined reports whether err is a client-facing declined operation
// rather than a failure.
func IsDeclined(err error) bool {
	switch CodeOf(err) {
	case CodeNotFound, CodeOperationNotAllowed:
		return true
	default:
		return false
	}
}

// Payload is the user-displayable form of an error: a stable kind string and
// a human-readable message.
type Payload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToPayload converts err into its displayable form. Causes are not included
// for coded errors so internal details do not leak to clients.
func ToPayload(err error) Payload {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return Payload{Kind: string(ge.Code), Message: ge.Message}
	}
	return Payload{Kind: string(CodeInternal), Message: "internal error"}
}

// Is reports whether err matches target using errors.Is semantics.
// This is a convenience wrapper around the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets target to that error value.
// This is a convenience wrapper around the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
