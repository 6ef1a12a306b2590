package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Debug("should not appear")
	l.Info("should not appear")
	l.Warn("warning here")
	l.Error("error here")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Error("debug/info output leaked past level filter")
	}
	if !strings.Contains(out, "warning here") {
		t.Error("warn output missing")
	}
	if !strings.Contains(out, "error here") {
		t.Error("error output missing")
	}
}

func TestComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	scoped := l.WithComponent("queue")
	scoped.Info("instruction_added", map[string]interface{}{"id": 3})

	out := buf.String()
	if !strings.Contains(out, "[queue]") {
		t.Errorf("component missing from output: %q", out)
	}
	if !strings.Contains(out, "id=3") {
		t.Errorf("field missing from output: %q", out)
	}
}

func TestWithAgentScoping(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.WithAgent("agent-ab12cd34").Info("claim")

	if !strings.Contains(buf.String(), "agent=agent-ab12cd34") {
		t.Errorf("agent field missing: %q", buf.String())
	}
}

func TestHelperTruncation(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelDebug)

	long := strings.Repeat("x", 200)
	l.Claim("agent-1", 1, long)

	out := buf.String()
	if strings.Contains(out, strings.Repeat("x", 120)) {
		t.Error("command was not truncated in log output")
	}
	if !strings.Contains(out, "...") {
		t.Error("expected truncation marker")
	}
}

func TestCompletedHelper(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.Completed("agent-1", 5, 1500*time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "instruction_completed") {
		t.Errorf("missing message: %q", out)
	}
	if !strings.Contains(out, "instruction=5") {
		t.Errorf("missing instruction id: %q", out)
	}
}
