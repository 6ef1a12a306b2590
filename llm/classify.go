package llm

import (
	"strings"

	"github.com/redcell-dev/opswarm/errors"
)

// Upstream failures arrive as provider error strings. Classification keys
// the coordinator's response: rate limits back off and retry, credits
// exhaustion is terminal for the agent, server errors retry. A generic
// failure must never be mistaken for credits exhaustion, so the billing
// keywords are checked first and kept deliberately specific.

// IsRateLimitError reports whether the error looks like upstream rate
// limiting.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "overloaded") ||
		strings.Contains(s, "capacity")
}

// IsInsufficientCreditsError reports whether the error is a billing or
// quota exhaustion failure. These are fatal for new work requests until
// the operator intervenes.
func IsInsufficientCreditsError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "insufficient credits") ||
		strings.Contains(s, "insufficient quota") ||
		strings.Contains(s, "quota exceeded") ||
		strings.Contains(s, "billing") ||
		strings.Contains(s, "payment required") ||
		strings.Contains(s, "402")
}

// IsServerError reports whether the error looks like a transient upstream
// server failure (5xx).
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "504") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "bad gateway") ||
		strings.Contains(s, "service unavailable") ||
		strings.Contains(s, "gateway timeout") ||
		strings.Contains(s, "temporarily unavailable")
}

// ClassifyError maps an upstream model-call error to a structured error.
// Structured errors pass through unchanged; raw errors are classified by
// keyword, credits exhaustion taking precedence over rate limiting.
func ClassifyError(err error) *errors.Error {
	if err == nil {
		return nil
	}
	if ce := errors.AsCoordError(err); ce != nil {
		if e, ok := ce.(*errors.Error); ok {
			return e
		}
	}

	switch {
	case IsInsufficientCreditsError(err):
		return errors.InsufficientCredits(err.Error(), errors.WithCause(err))
	case IsRateLimitError(err):
		return errors.RateLimited(err.Error(), errors.WithCause(err))
	case IsServerError(err):
		return errors.New(errors.ErrCodeModelErr, err.Error(), errors.WithCause(err))
	default:
		return errors.WrapWithCode(err, errors.ErrCodeModelErr, "model call failed")
	}
}
