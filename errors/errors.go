package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// CoordError is the interface for all structured errors in the coordination
// core. It extends the standard error interface with the context the
// coordinator needs for retry and isolation decisions.
type CoordError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for retry/handling decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of CoordError.
type Error struct {
	code          ErrorCode
	category      ErrorCategory
	message       string
	cause         error
	retryable     *bool // nil means use code default
	timestamp     time.Time
	agentID       string // source agent, if applicable
	instructionID uint64 // related instruction, if applicable
}

// Ensure Error implements CoordError and json.Marshaler.
var (
	_ CoordError     = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.code.DefaultRetryable()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// AgentID returns the source agent ID, if set.
func (e *Error) AgentID() string {
	return e.agentID
}

// InstructionID returns the related instruction ID, or zero.
func (e *Error) InstructionID() uint64 {
	return e.instructionID
}

// errorJSON is the JSON representation of an Error, used when errors are
// carried inside broadcast events.
type errorJSON struct {
	Code          ErrorCode     `json:"code"`
	Category      ErrorCategory `json:"category"`
	Message       string        `json:"message"`
	Cause         string        `json:"cause,omitempty"`
	Retryable     bool          `json:"retryable"`
	Timestamp     string        `json:"timestamp,omitempty"`
	AgentID       string        `json:"agent_id,omitempty"`
	InstructionID uint64        `json:"instruction_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:          e.code,
		Category:      e.category,
		Message:       e.message,
		Retryable:     e.Retryable(),
		AgentID:       e.agentID,
		InstructionID: e.instructionID,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithAgentID sets the source agent ID.
func WithAgentID(id string) Option {
	return func(e *Error) {
		e.agentID = id
	}
}

// WithInstructionID sets the related instruction ID.
func WithInstructionID(id uint64) Option {
	return func(e *Error) {
		e.instructionID = id
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// QueueFull creates a queue-at-capacity error.
func QueueFull(message string, opts ...Option) *Error {
	return New(ErrCodeQueueFull, message, opts...)
}

// NotFound creates a not found error for an instruction id.
func NotFound(id uint64, opts ...Option) *Error {
	opts = append([]Option{WithInstructionID(id)}, opts...)
	return New(ErrCodeNotFound, fmt.Sprintf("instruction %d not found", id), opts...)
}

// Conflict creates a conflict error for an instruction id.
func Conflict(id uint64, message string, opts ...Option) *Error {
	opts = append([]Option{WithInstructionID(id)}, opts...)
	return New(ErrCodeConflict, message, opts...)
}

// ExecTimeout creates an execution timeout error.
func ExecTimeout(message string, opts ...Option) *Error {
	return New(ErrCodeExecTimeout, message, opts...)
}

// RateLimited creates a rate limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimited, message, opts...)
}

// InsufficientCredits creates a credits-exhausted error. These are terminal
// for the affected agent until resolved externally and must never be
// conflated with generic rate limiting.
func InsufficientCredits(message string, opts ...Option) *Error {
	return New(ErrCodeNoCredits, message, opts...)
}

// StaleClaim creates a stale-claim error.
func StaleClaim(id uint64, agentID string, opts ...Option) *Error {
	opts = append([]Option{WithInstructionID(id), WithAgentID(agentID)}, opts...)
	return New(ErrCodeStaleClaim,
		fmt.Sprintf("instruction %d claim by %s went stale", id, agentID), opts...)
}

// Blocked creates a policy-blocked error.
func Blocked(message string, opts ...Option) *Error {
	return New(ErrCodeBlocked, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
