package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redcell-dev/opswarm/errors"
)

func TestShellExecutorSuccess(t *testing.T) {
	e := NewShellExecutor()
	out, err := e.Execute(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q, want hello", out)
	}
}

func TestShellExecutorFailure(t *testing.T) {
	e := NewShellExecutor()
	out, err := e.Execute(context.Background(), "echo oops; exit 3")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !errors.Is(err, errors.ErrCodeExecFailed) {
		t.Errorf("error = %v, want EXECUTION_ERROR", err)
	}
	if !strings.Contains(out, "oops") {
		t.Errorf("partial output lost: %q", out)
	}
	if !strings.Contains(err.Error(), "oops") {
		t.Errorf("error should carry the first output line: %v", err)
	}
}

func TestShellExecutorTimeout(t *testing.T) {
	e := NewShellExecutor()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Execute(ctx, "sleep 5")
	if !errors.Is(err, errors.ErrCodeExecTimeout) {
		t.Errorf("error = %v, want EXECUTION_TIMEOUT", err)
	}
}

func TestShellExecutorCancel(t *testing.T) {
	e := NewShellExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, "sleep 5")
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Errorf("error = %v, want CANCELED", err)
	}
}
