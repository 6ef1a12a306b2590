package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeDefaults(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		category  ErrorCategory
		retryable bool
	}{
		{ErrCodeQueueFull, CategoryResource, true},
		{ErrCodeNotFound, CategoryPermanent, false},
		{ErrCodeConflict, CategoryPermanent, false},
		{ErrCodeExecTimeout, CategoryTransient, true},
		{ErrCodeRateLimited, CategoryResource, true},
		{ErrCodeNoCredits, CategoryResource, false},
		{ErrCodeStaleClaim, CategoryTransient, true},
		{ErrCodeBlocked, CategoryPermanent, false},
	}

	for _, tt := range tests {
		if got := tt.code.DefaultCategory(); got != tt.category {
			t.Errorf("%s: category = %s, want %s", tt.code, got, tt.category)
		}
		if got := tt.code.DefaultRetryable(); got != tt.retryable {
			t.Errorf("%s: retryable = %v, want %v", tt.code, got, tt.retryable)
		}
	}
}

func TestNewAndAccessors(t *testing.T) {
	err := New(ErrCodeConflict, "cannot edit executing instruction",
		WithInstructionID(42), WithAgentID("agent-1"))

	if err.Code() != ErrCodeConflict {
		t.Errorf("code = %s, want CONFLICT", err.Code())
	}
	if err.Category() != CategoryPermanent {
		t.Errorf("category = %s, want permanent", err.Category())
	}
	if err.InstructionID() != 42 {
		t.Errorf("instruction id = %d, want 42", err.InstructionID())
	}
	if err.AgentID() != "agent-1" {
		t.Errorf("agent id = %q, want agent-1", err.AgentID())
	}
	if err.Retryable() {
		t.Error("conflict should not be retryable")
	}
}

func TestInsufficientCreditsNotRetryable(t *testing.T) {
	err := InsufficientCredits("account exhausted")
	if err.Retryable() {
		t.Error("insufficient credits must not be retryable")
	}
	if err.Category() != CategoryResource {
		t.Errorf("category = %s, want resource", err.Category())
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := NotFound(7)
	wrapped := Wrap(inner, "complete failed")

	if wrapped.Code() != ErrCodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", wrapped.Code())
	}
	if wrapped.InstructionID() != 7 {
		t.Errorf("instruction id = %d, want 7", wrapped.InstructionID())
	}
	if !stderrors.Is(wrapped, inner) {
		t.Error("wrapped error should match inner via errors.Is")
	}
	if !Is(wrapped, ErrCodeNotFound) {
		t.Error("Is should find NOT_FOUND through the chain")
	}
}

func TestWrapContextErrors(t *testing.T) {
	if got := Wrap(context.DeadlineExceeded, "executor").Code(); got != ErrCodeTimeout {
		t.Errorf("deadline exceeded code = %s, want TIMEOUT", got)
	}
	if got := Wrap(context.Canceled, "executor").Code(); got != ErrCodeCanceled {
		t.Errorf("canceled code = %s, want CANCELED", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "nothing") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapUnknownError(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("boom"), "worker loop")
	if wrapped.Code() != ErrCodeInternal {
		t.Errorf("code = %s, want INTERNAL", wrapped.Code())
	}
	if wrapped.Retryable() {
		t.Error("unknown errors should default to not retryable")
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(ErrCodeNotFound, "gone", WithRetryable(true))
	if !err.Retryable() {
		t.Error("explicit retryable override ignored")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(RateLimited("429")) {
		t.Error("rate limited should be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := StaleClaim(9, "agent-2")

	data, merr := json.Marshal(err)
	if merr != nil {
		t.Fatalf("marshal: %v", merr)
	}

	var decoded map[string]interface{}
	if uerr := json.Unmarshal(data, &decoded); uerr != nil {
		t.Fatalf("unmarshal: %v", uerr)
	}
	if decoded["code"] != "STALE_CLAIM" {
		t.Errorf("code = %v, want STALE_CLAIM", decoded["code"])
	}
	if decoded["agent_id"] != "agent-2" {
		t.Errorf("agent_id = %v, want agent-2", decoded["agent_id"])
	}
	if decoded["instruction_id"] != float64(9) {
		t.Errorf("instruction_id = %v, want 9", decoded["instruction_id"])
	}
}
