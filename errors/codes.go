package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: model endpoint unavailable, execution timeout.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: unknown instruction id, invalid state transition.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: rate limiting, queue at capacity, exhausted credits.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the coordination core.
const (
	// Queue errors
	ErrCodeQueueFull ErrorCode = "QUEUE_FULL" // Pending sequence at capacity
	ErrCodeNotFound  ErrorCode = "NOT_FOUND"  // Instruction id does not exist
	ErrCodeConflict  ErrorCode = "CONFLICT"   // Invalid state transition requested

	// Execution errors
	ErrCodeExecTimeout ErrorCode = "EXECUTION_TIMEOUT" // Executor exceeded its deadline
	ErrCodeExecFailed  ErrorCode = "EXECUTION_ERROR"   // Executor returned an error
	ErrCodeBlocked     ErrorCode = "BLOCKED"           // Command rejected by policy
	ErrCodeStaleClaim  ErrorCode = "STALE_CLAIM"       // Claim held past the liveness bound

	// Model-call errors
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"         // Upstream model rate limit hit
	ErrCodeNoCredits   ErrorCode = "INSUFFICIENT_CREDITS" // Account quota exhausted
	ErrCodeModelErr    ErrorCode = "MODEL_UNAVAILABLE"    // Model endpoint failed

	// Generic
	ErrCodeTimeout      ErrorCode = "TIMEOUT"       // Operation timed out
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodeInternal     ErrorCode = "INTERNAL"      // Unexpected internal error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeExecTimeout, ErrCodeModelErr, ErrCodeStaleClaim, ErrCodeTimeout:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeConflict, ErrCodeExecFailed, ErrCodeBlocked,
		ErrCodeCanceled, ErrCodeInvalidInput:
		return CategoryPermanent

	case ErrCodeQueueFull, ErrCodeRateLimited, ErrCodeNoCredits:
		return CategoryResource

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
// Insufficient credits is the one resource error that retry cannot fix:
// it is terminal until the operator intervenes.
func (c ErrorCode) DefaultRetryable() bool {
	if c == ErrCodeNoCredits {
		return false
	}
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeQueueFull:    "instruction queue at capacity",
	ErrCodeNotFound:     "instruction not found",
	ErrCodeConflict:     "conflicting instruction state",
	ErrCodeExecTimeout:  "command execution timed out",
	ErrCodeExecFailed:   "command execution failed",
	ErrCodeBlocked:      "command blocked by policy",
	ErrCodeStaleClaim:   "claim held past liveness bound",
	ErrCodeRateLimited:  "model rate limit exceeded",
	ErrCodeNoCredits:    "model credits exhausted",
	ErrCodeModelErr:     "model endpoint unavailable",
	ErrCodeTimeout:      "operation timed out",
	ErrCodeCanceled:     "operation canceled",
	ErrCodeInvalidInput: "invalid input provided",
	ErrCodeInternal:     "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
