package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error
// chain. If err is nil, Wrap returns nil. If err is already a *Error, the
// wrapped error keeps its code and category. Context cancellation and
// deadline errors map to CANCELED and TIMEOUT respectively.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var coordErr *Error
	if errors.As(err, &coordErr) {
		wrapped := &Error{
			code:          coordErr.code,
			category:      coordErr.category,
			message:       message,
			cause:         err,
			retryable:     coordErr.retryable,
			agentID:       coordErr.agentID,
			instructionID: coordErr.instructionID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsCoordError attempts to extract a CoordError from an error chain.
// Returns nil if none is found.
func AsCoordError(err error) CoordError {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
// Non-structured errors default to not retryable.
func IsRetryable(err error) bool {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.Retryable()
	}
	return false
}
