package errors

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode Code
		retryable    bool
	}{
		{
			name:         "nil error",
			err:          nil,
			expectedCode: "",
		},
		{
			name:         "already EngineError",
			err:          New(CodeCompletionBlocked, "blocked"),
			expectedCode: CodeCompletionBlocked,
		},
		{
			name:         "context deadline exceeded",
			err:          context.DeadlineExceeded,
			expectedCode: CodeTimeout,
			retryable:    true,
		},
		{
			name:         "context cancelled",
			err:          context.Canceled,
			expectedCode: CodeCancelled,
		},
		{
			name:         "file not found",
			err:          os.ErrNotExist,
			expectedCode: CodeStorageNotFound,
		},
		{
			name:         "permission denied",
			err:          os.ErrPermission,
			expectedCode: CodeInternal,
		},
		{
			name:         "unknown error",
			err:          errors.New("something weird"),
			expectedCode: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Error("expected nil for nil error")
				}
				return
			}
			if got.Code != tt.expectedCode {
				t.Errorf("Classify() code = %s, want %s", got.Code, tt.expectedCode)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Classify() retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}
}

func TestMustClassify(t *testing.T) {
	if MustClassify(nil) != nil {
		t.Error("MustClassify(nil) should return nil")
	}

	err := errors.New("test")
	classified := MustClassify(err)
	if classified == nil {
		t.Fatal("MustClassify should return non-nil for non-nil error")
	}
	if classified.Code != CodeUnknown {
		t.Errorf("expected CodeUnknown, got %s", classified.Code)
	}
}

func TestClassifyWithCode(t *testing.T) {
	err := context.DeadlineExceeded
	classified := ClassifyWithCode(err, CodeInternal)
	if classified.Code != CodeTimeout {
		t.Errorf("expected CodeTimeout for deadline exceeded, got %s", classified.Code)
	}

	err = errors.New("unknown")
	classified = ClassifyWithCode(err, CodeWorkflowPlanNotFound)
	if classified.Code != CodeWorkflowPlanNotFound {
		t.Errorf("expected CodeWorkflowPlanNotFound, got %s", classified.Code)
	}
}
