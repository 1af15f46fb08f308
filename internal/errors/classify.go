package errors

import (
	"context"
	"errors"
	"os"
)

// Classify attempts to classify an unknown error into an EngineError.
// This is used at system boundaries (transport dispatch, storage I/O) to
// ensure every error that crosses a boundary is typed.
func Classify(err error) *EngineError {
	if err == nil {
		return nil
	}

	if re, ok := err.(*EngineError); ok {
		return re
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, "operation timed out").WithCause(err).SetRetryable(true)
	}
	if errors.Is(err, context.Canceled) {
		return New(CodeCancelled, "operation cancelled").WithCause(err)
	}

	if errors.Is(err, os.ErrNotExist) {
		return New(CodeStorageNotFound, "resource not found").WithCause(err)
	}
	if errors.Is(err, os.ErrPermission) {
		return New(CodeInternal, "permission denied").WithCause(err)
	}

	return New(CodeUnknown, "an unexpected error occurred").WithCause(err)
}

// MustClassify ensures an error is an EngineError, returning nil for a nil input.
func MustClassify(err error) *EngineError {
	if err == nil {
		return nil
	}
	return Classify(err)
}

// ClassifyWithCode classifies an error with a suggested default code.
// If the error can be classified more specifically, that takes precedence.
func ClassifyWithCode(err error, defaultCode Code) *EngineError {
	if err == nil {
		return nil
	}

	classified := Classify(err)
	if classified.Code == CodeUnknown {
		classified.Code = defaultCode
	}
	return classified
}
