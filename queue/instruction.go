package queue

import "time"

// State is an instruction's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state is an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// MaxResultLen bounds the stored result of an instruction. Full output
// belongs to the executor's own channels; the queue keeps a summary.
const MaxResultLen = 500

// Instruction is one unit of executable work tracked by the queue.
// IDs are assigned at add time, increase monotonically, and are never
// reused within a queue's lifetime.
type Instruction struct {
	ID        uint64    `json:"id"`
	Command   string    `json:"command"`
	State     State     `json:"state"`
	ClaimedBy string    `json:"claimed_by,omitempty"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ClaimedAt time.Time `json:"claimed_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// clone returns a copy so callers never alias queue-owned memory.
func (in *Instruction) clone() *Instruction {
	c := *in
	return &c
}

// truncateResult bounds a result string for storage.
func truncateResult(s string) string {
	if len(s) <= MaxResultLen {
		return s
	}
	return s[:MaxResultLen]
}
