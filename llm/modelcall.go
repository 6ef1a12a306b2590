// Package llm defines the model-call boundary of the coordination core:
// the interface agents use to request new instruction batches, the parsing
// of model responses into commands, and the classification of upstream
// failures. Concrete provider HTTP clients live outside the core and plug
// in behind ModelCall.
package llm

import (
	"context"
	"sync"
)

// EndSignal is the token a model emits to declare the mission complete.
// An agent that sees it stops requesting further work.
const EndSignal = "<END!>"

// Request asks the upstream model for the next batch of instructions.
type Request struct {
	// AgentID identifies the requesting agent.
	AgentID string

	// ModelID is the model identity, also the rate-limiter bucket key.
	ModelID string

	// Objective is the mission objective driving instruction generation.
	Objective string

	// RecentResults carries the latest execution results so the model can
	// plan follow-up work.
	RecentResults []string
}

// Batch is a parsed model response.
type Batch struct {
	// Commands to feed into the queue, in execution order.
	Commands []string

	// MissionComplete is set when the response carried the end signal.
	MissionComplete bool

	// Raw is the unparsed response text, kept for findings extraction.
	Raw string
}

// ModelCall requests instruction batches from an upstream model. Errors
// should be classifiable by ClassifyError; implementations backed by HTTP
// providers surface status text in their error strings for that purpose.
type ModelCall interface {
	RequestInstructions(ctx context.Context, req Request) (*Batch, error)
}

// ScriptedModel is a ModelCall for tests and demos: it returns queued
// responses in order, then mission-complete. Safe for concurrent use.
type ScriptedModel struct {
	mu        sync.Mutex
	responses []scriptStep
	callCount int
	lastReq   *Request
}

type scriptStep struct {
	batch *Batch
	err   error
}

// NewScriptedModel creates an empty scripted model.
func NewScriptedModel() *ScriptedModel {
	return &ScriptedModel{}
}

// QueueResponse appends a raw response text; it is parsed on delivery
// exactly as a live model response would be.
func (m *ScriptedModel) QueueResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, scriptStep{batch: ParseResponse(text)})
}

// QueueError appends an error step.
func (m *ScriptedModel) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, scriptStep{err: err})
}

// CallCount returns the number of RequestInstructions calls.
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest returns the most recent request, or nil.
func (m *ScriptedModel) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

// RequestInstructions implements ModelCall. Once the script is exhausted
// it reports mission complete.
func (m *ScriptedModel) RequestInstructions(ctx context.Context, req Request) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	r := req
	m.lastReq = &r

	if len(m.responses) == 0 {
		return &Batch{MissionComplete: true, Raw: EndSignal}, nil
	}
	step := m.responses[0]
	m.responses = m.responses[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.batch, nil
}

// Ensure ScriptedModel implements ModelCall.
var _ ModelCall = (*ScriptedModel)(nil)
