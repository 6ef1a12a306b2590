package llm

import (
	"context"
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/redcell-dev/opswarm/errors"
)

func TestParseRunLines(t *testing.T) {
	text := `Starting with service discovery.
RUN nmap -sV -p- 10.0.0.1
Some commentary between commands.
RUN nikto -h http://10.0.0.1
  RUN gobuster dir -u http://10.0.0.1 -w common.txt
RUN
`
	b := ParseResponse(text)
	want := []string{
		"nmap -sV -p- 10.0.0.1",
		"nikto -h http://10.0.0.1",
		"gobuster dir -u http://10.0.0.1 -w common.txt",
	}
	if !reflect.DeepEqual(b.Commands, want) {
		t.Errorf("commands = %q, want %q", b.Commands, want)
	}
	if b.MissionComplete {
		t.Error("unexpected mission complete")
	}
}

func TestParseJSONBatch(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "bare object",
			text: `{"commands": ["nmap -sV 10.0.0.1", "whatweb 10.0.0.1"]}`,
			want: []string{"nmap -sV 10.0.0.1", "whatweb 10.0.0.1"},
		},
		{
			name: "fenced",
			text: "Here is the plan:\n```json\n{\"commands\": [\"nmap -sV 10.0.0.1\"]}\n```\n",
			want: []string{"nmap -sV 10.0.0.1"},
		},
		{
			name: "embedded in prose",
			text: `I suggest {"commands": ["RUN nikto -h 10.0.0.1", ""]} as next steps.`,
			want: []string{"nikto -h 10.0.0.1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ParseResponse(tt.text)
			if !reflect.DeepEqual(b.Commands, tt.want) {
				t.Errorf("commands = %q, want %q", b.Commands, tt.want)
			}
		})
	}
}

func TestParseEndSignal(t *testing.T) {
	b := ParseResponse("All objectives verified. <END!>")
	if !b.MissionComplete {
		t.Error("end signal not detected")
	}
	if len(b.Commands) != 0 {
		t.Errorf("commands = %q, want none", b.Commands)
	}

	// Commands and the end signal can share a response.
	b = ParseResponse("RUN nmap -sV 10.0.0.1\n<END!>")
	if !b.MissionComplete || len(b.Commands) != 1 {
		t.Errorf("batch = %+v", b)
	}
}

func TestParsePlainProse(t *testing.T) {
	b := ParseResponse("I could not determine any further steps.")
	if len(b.Commands) != 0 || b.MissionComplete {
		t.Errorf("batch = %+v, want empty", b)
	}
}

func TestClassifyRateLimit(t *testing.T) {
	for _, msg := range []string{
		"429 Too Many Requests",
		"rate limit exceeded, retry after 20s",
		"model overloaded",
	} {
		err := ClassifyError(stderrors.New(msg))
		if err.Code() != errors.ErrCodeRateLimited {
			t.Errorf("ClassifyError(%q) = %s, want RATE_LIMITED", msg, err.Code())
		}
		if !err.Retryable() {
			t.Errorf("ClassifyError(%q) not retryable", msg)
		}
	}
}

func TestClassifyInsufficientCredits(t *testing.T) {
	for _, msg := range []string{
		"402 Payment Required",
		"insufficient credits to complete request",
		"quota exceeded for this billing period",
	} {
		err := ClassifyError(stderrors.New(msg))
		if err.Code() != errors.ErrCodeNoCredits {
			t.Errorf("ClassifyError(%q) = %s, want INSUFFICIENT_CREDITS", msg, err.Code())
		}
		if err.Retryable() {
			t.Errorf("ClassifyError(%q) must not be retryable", msg)
		}
	}
}

// A response mentioning both quota and rate keywords is a credits failure:
// conflating the two turns a terminal condition into an infinite retry.
func TestClassifyCreditsBeatsRateLimit(t *testing.T) {
	err := ClassifyError(stderrors.New("quota exceeded: too many requests this month"))
	if err.Code() != errors.ErrCodeNoCredits {
		t.Errorf("code = %s, want INSUFFICIENT_CREDITS", err.Code())
	}
}

func TestClassifyServerAndGeneric(t *testing.T) {
	err := ClassifyError(stderrors.New("503 service unavailable"))
	if err.Code() != errors.ErrCodeModelErr {
		t.Errorf("server error code = %s", err.Code())
	}

	err = ClassifyError(stderrors.New("connection reset by peer"))
	if err.Code() != errors.ErrCodeModelErr {
		t.Errorf("generic error code = %s", err.Code())
	}
}

func TestClassifyPassesThroughStructured(t *testing.T) {
	orig := errors.RateLimited("already classified")
	if got := ClassifyError(orig); got != orig {
		t.Errorf("structured error was reclassified: %v", got)
	}
}

func TestScriptedModel(t *testing.T) {
	m := NewScriptedModel()
	m.QueueResponse("RUN nmap -sV 10.0.0.1")
	m.QueueError(stderrors.New("429 too many requests"))
	m.QueueResponse("<END!>")

	ctx := context.Background()
	req := Request{AgentID: "agent-1", ModelID: "gpt-4o"}

	b, err := m.RequestInstructions(ctx, req)
	if err != nil || len(b.Commands) != 1 {
		t.Fatalf("first call: %+v, %v", b, err)
	}

	if _, err := m.RequestInstructions(ctx, req); err == nil {
		t.Fatal("second call: expected error")
	}

	b, err = m.RequestInstructions(ctx, req)
	if err != nil || !b.MissionComplete {
		t.Fatalf("third call: %+v, %v", b, err)
	}

	// Exhausted script keeps reporting mission complete.
	b, _ = m.RequestInstructions(ctx, req)
	if !b.MissionComplete {
		t.Error("exhausted script should report mission complete")
	}

	if m.CallCount() != 4 {
		t.Errorf("call count = %d, want 4", m.CallCount())
	}
	if m.LastRequest().AgentID != "agent-1" {
		t.Errorf("last request = %+v", m.LastRequest())
	}
}
