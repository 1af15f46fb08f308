package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeCompletionBlocked, "completion blocked")
	if err.Code != CodeCompletionBlocked {
		t.Errorf("expected code %s, got %s", CodeCompletionBlocked, err.Code)
	}
	if err.Message != "completion blocked" {
		t.Errorf("expected message 'completion blocked', got %s", err.Message)
	}
	if err.Retryable {
		t.Error("expected non-retryable error")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeInvalidStepNumber, "step %d out of order", 3)
	if err.Code != CodeInvalidStepNumber {
		t.Errorf("expected code %s, got %s", CodeInvalidStepNumber, err.Code)
	}
	if !strings.Contains(err.Message, "3") {
		t.Errorf("expected message to contain '3', got %s", err.Message)
	}
}

func TestWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(CodeInternal, "something went wrong").WithCause(cause)

	if err.Cause != cause {
		t.Error("expected cause to be set")
	}
	if !strings.Contains(err.Error(), "underlying error") {
		t.Errorf("expected error to contain cause, got %s", err.Error())
	}
}

func TestWithContext(t *testing.T) {
	err := New(CodeSessionNotFound, "session not found").
		WithContext("session_id", "sess123").
		WithContext("technique", "random_entry")

	if err.Context == nil {
		t.Fatal("expected context to be set")
	}
	if err.Context["session_id"] != "sess123" {
		t.Errorf("expected session_id in context")
	}
}

func TestWrap(t *testing.T) {
	original := errors.New("something failed")
	wrapped := Wrap(original, CodeWorkflowPlanNotFound, "plan lookup failed")

	if wrapped.Code != CodeWorkflowPlanNotFound {
		t.Errorf("expected code %s, got %s", CodeWorkflowPlanNotFound, wrapped.Code)
	}
	if wrapped.Cause != original {
		t.Error("expected cause to be original error")
	}

	engineErr := New(CodeSessionNotFound, "not found")
	wrapped2 := Wrap(engineErr, CodeInternal, "internal")
	if wrapped2 != engineErr {
		t.Error("wrapping an EngineError should return the same error")
	}

	if Wrap(nil, CodeInternal, "test") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestIsEngineError(t *testing.T) {
	if IsEngineError(nil) {
		t.Error("nil should not be an EngineError")
	}
	if IsEngineError(errors.New("regular")) {
		t.Error("regular error should not be an EngineError")
	}
	if !IsEngineError(New(CodeInternal, "engine error")) {
		t.Error("EngineError should be recognized")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(nil) != "" {
		t.Error("nil error should return empty code")
	}
	if GetCode(errors.New("regular")) != CodeUnknown {
		t.Error("regular error should return CodeUnknown")
	}
	if GetCode(New(CodeSessionNotFound, "not found")) != CodeSessionNotFound {
		t.Error("EngineError should return its code")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(errors.New("regular")) {
		t.Error("regular error should not be retryable")
	}
	if !IsRetryable(New(CodeTimeout, "timeout")) {
		t.Error("timeout should be retryable")
	}
	if IsRetryable(New(CodeCompletionBlocked, "blocked")) {
		t.Error("completion blocked should not be retryable")
	}
}

func TestSafeError(t *testing.T) {
	cause := errors.New("sensitive details")
	err := New(CodeInternal, "something failed").WithCause(cause)

	safe := err.SafeError()
	if strings.Contains(safe, "sensitive") {
		t.Error("safe error should not contain cause details")
	}
	if !strings.Contains(safe, "INTERNAL_ERROR") {
		t.Error("safe error should contain code")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := New(CodeSessionNotFound, "session not found").
		WithContext("session_id", "sess123").
		SetRetryable(false)

	data, err2 := err.MarshalJSON()
	if err2 != nil {
		t.Fatalf("marshal failed: %v", err2)
	}

	if !strings.Contains(string(data), "STATE_SESSION_NOT_FOUND") {
		t.Error("JSON should contain code")
	}
	if !strings.Contains(string(data), "session not found") {
		t.Error("JSON should contain message")
	}
	if strings.Contains(string(data), "Cause") {
		t.Error("JSON should not contain Cause field")
	}
}

func TestCodeCategory(t *testing.T) {
	tests := []struct {
		code     Code
		expected string
	}{
		{CodeUnknown, "general"},
		{CodeInternal, "general"},
		{CodeValidationFailed, "validation"},
		{CodeWorkflowPlanNotFound, "workflow"},
		{CodeSessionNotFound, "state"},
		{CodeStorageReadFailed, "system"},
		{CodeCompletionBlocked, "gatekeeper"},
		{CodeBarrierCrossed, "ergodicity"},
		{Code("custom"), "general"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Category(); got != tt.expected {
				t.Errorf("Category() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCodeIsRetryable(t *testing.T) {
	retryableCodes := []Code{
		CodeTimeout,
		CodeStorageReadFailed,
		CodeStorageWriteFailed,
		CodeResourceExhausted,
		CodeExecutionTimeout,
		CodeDependencyTimeout,
	}

	for _, code := range retryableCodes {
		if !code.IsRetryable() {
			t.Errorf("%s should be retryable", code)
		}
	}

	nonRetryableCodes := []Code{
		CodeCompletionBlocked,
		CodeBarrierCrossed,
		CodeInvalidArgument,
	}

	for _, code := range nonRetryableCodes {
		if code.IsRetryable() {
			t.Errorf("%s should not be retryable", code)
		}
	}
}
