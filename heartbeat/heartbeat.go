// Package heartbeat provides agent liveness tracking over the event bus.
// Each agent worker publishes a periodic heartbeat; the Monitor tracks
// last-seen times and reports agents that go quiet. The coordinator's
// stale-claim recovery keys off these reports: a claim held by a dead
// agent can be failed and surfaced instead of hanging forever.
package heartbeat

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New("heartbeat already started")
	ErrNotStarted     = errors.New("heartbeat not started")
)

// SubjectPrefix is the bus subject prefix for heartbeat messages.
const SubjectPrefix = "heartbeat."

// DefaultInterval between heartbeats.
const DefaultInterval = 5 * time.Second

// DefaultTimeout before an agent is presumed dead. Keep this at 2-3x the
// send interval.
const DefaultTimeout = 15 * time.Second

// Heartbeat is one liveness report from an agent worker.
type Heartbeat struct {
	// AgentID uniquely identifies the sending agent.
	AgentID string `json:"agent_id"`

	// Status is the worker's current loop state.
	Status string `json:"status"`

	// InstructionID is the claimed instruction, if the agent is executing.
	InstructionID uint64 `json:"instruction_id,omitempty"`

	// Timestamp when the heartbeat was generated.
	Timestamp time.Time `json:"timestamp"`
}

// Subject returns the bus subject for this heartbeat.
func (h *Heartbeat) Subject() string {
	return SubjectPrefix + h.AgentID
}

// Marshal serializes a heartbeat to JSON.
func (h *Heartbeat) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// Unmarshal deserializes a heartbeat from JSON.
func Unmarshal(data []byte) (*Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
