// Package errors provides structured errors for the coordination core.
//
// Every invalid queue operation, executor failure, and model-call failure
// is surfaced as a typed *Error carrying a code, a category, and retry
// semantics. The queue never panics on bad input; callers branch on codes
// (QUEUE_FULL, NOT_FOUND, CONFLICT, ...) with errors.Is, and the agent
// coordinator branches on categories to decide between retry, backoff,
// and terminal agent states.
package errors
