package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestGatewayError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *GatewayError
		want string
	}{
		{
			name: "with cause",
			err:  NewError(CodeLoadFailed, "load version v2", errors.New("disk gone")),
			want: "[LOAD_FAILED] load version v2: disk gone",
		},
		{
			name: "without cause",
			err:  NewError(CodeNotFound, "no workspace for v3", nil),
			want: "[NOT_FOUND] no workspace for v3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := UploadFailed(cause, "upload project %s", "p1")

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestNewError(t *testing.T) {
	err := NewError(CodeValidation, "bad input", nil)

	if err.Code != CodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, CodeValidation)
	}
	if err.Message != "bad input" {
		t.Errorf("Message = %v, want %v", err.Message, "bad input")
	}
	if err.Context == nil {
		t.Error("Context should be initialized, got nil")
	}
}

func TestWithContext_NilContext(t *testing.T) {
	err := &GatewayError{Code: CodeValidation, Message: "test"}

	err = WithContext(err, "key", "value")

	if err.Context["key"] != "value" {
		t.Errorf("Context[key] = %v, want %v", err.Context["key"], "value")
	}
}

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NotFound("stack %q", "doc"), ErrNotFound},
		{"not allowed", NotAllowed("undo while busy"), ErrOperationNotAllowed},
		{"load", LoadFailed(nil, "load"), ErrLoadFailed},
		{"local save", LocalSaveFailed(nil, "save"), ErrLocalSaveFailed},
		{"upload", UploadFailed(nil, "upload"), ErrUploadFailed},
		{"threshold", ThresholdExceeded(10, 5), ErrSyncThresholdExceeded},
		{"wrapped", fmt.Errorf("outer: %w", NotFound("x")), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !Is(tt.err, tt.sentinel) {
				t.Errorf("Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}

	if Is(NotFound("x"), ErrOperationNotAllowed) {
		t.Error("NOT_FOUND error should not match ErrOperationNotAllowed")
	}
}

func TestThresholdExceeded_Context(t *testing.T) {
	err := ThresholdExceeded(2048, 1024)

	if err.Context["size"] != int64(2048) {
		t.Errorf("Context[size] = %v, want 2048", err.Context["size"])
	}
	if err.Context["threshold"] != int64(1024) {
		t.Errorf("Context[threshold] = %v, want 1024", err.Context["threshold"])
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("wrap: %w", LocalSaveFailed(nil, "x"))); got != CodeLocalSaveFailed {
		t.Errorf("CodeOf() = %v, want %v", got, CodeLocalSaveFailed)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf(plain) = %v, want %v", got, CodeInternal)
	}
}

func TestIsDeclined(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NotFound("x"), true},
		{NotAllowed("x"), true},
		{LoadFailed(nil, "x"), false},
		{errors.New("plain"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := IsDeclined(tt.err); got != tt.want {
			t.Errorf("IsDeclined(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestToPayload(t *testing.T) {
	p := ToPayload(LoadFailed(errors.New("secret path /var/x"), "could not load v2"))
	if p.Kind != "LOAD_FAILED" {
		t.Errorf("Kind = %q, want LOAD_FAILED", p.Kind)
	}
	if p.Message != "could not load v2" {
		t.Errorf("Message = %q, want cause-free message", p.Message)
	}

	p = ToPayload(errors.New("boom"))
	if p.Kind != "INTERNAL" {
		t.Errorf("Kind = %q, want INTERNAL", p.Kind)
	}
}

func TestAs_Wrapper(t *testing.T) {
	err := fmt.Errorf("ctx: %w", NotAllowed("busy"))

	var target *GatewayError
	if !As(err, &target) {
		t.Fatal("As should return true and set target")
	}
	if target.Code != CodeOperationNotAllowed {
		t.Errorf("target.Code = %v, want %v", target.Code, CodeOperationNotAllowed)
	}
}
