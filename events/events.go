// Package events defines the structured event stream emitted by the
// coordination core.
//
// Every queue mutation and agent status change produces an Event. The core
// only depends on the Sink interface; the bus-backed Broadcaster is the
// production implementation and fans events out to observers under
// `events.<type>` subjects.
package events

import (
	"encoding/json"
	"time"
)

// Type identifies what happened.
type Type string

// Event types emitted by the core.
const (
	TypeInstructionAdded     Type = "instruction_added"
	TypeInstructionClaimed   Type = "instruction_claimed"
	TypeInstructionCompleted Type = "instruction_completed"
	TypeInstructionFailed    Type = "instruction_failed"
	TypeInstructionRemoved   Type = "instruction_removed"
	TypeInstructionEdited    Type = "instruction_edited"
	TypeInstructionRequeued  Type = "instruction_requeued"
	TypeQueueCleared         Type = "queue_cleared"

	TypeAgentStatus     Type = "agent_status"
	TypeThrottleChanged Type = "throttle_changed"
	TypeRateLimitHit    Type = "rate_limit_hit"
	TypeFinding         Type = "finding"
	TypeError           Type = "error"

	TypeMissionStarted Type = "mission_started"
	TypeMissionStopped Type = "mission_stopped"
)

// SubjectPrefix is the bus subject prefix for core events.
const SubjectPrefix = "events."

// Event is one state-change notification.
type Event struct {
	// Type of the event.
	Type Type `json:"type"`

	// AgentID is the agent involved, if any.
	AgentID string `json:"agent_id,omitempty"`

	// Payload carries event-specific fields.
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Timestamp when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// Subject returns the bus subject for this event.
func (e *Event) Subject() string {
	return SubjectPrefix + string(e.Type)
}

// Marshal serializes an event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// New creates an event with the current timestamp.
func New(typ Type, agentID string, payload map[string]interface{}) *Event {
	return &Event{
		Type:      typ,
		AgentID:   agentID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Sink receives events from the core. Implementations must not block:
// the emitting goroutine may be holding the queue lock's caller path.
type Sink interface {
	Emit(e *Event)
}

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(*Event) {}
