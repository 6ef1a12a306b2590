package agent

import (
	"sync"
	"time"
)

// Status is an agent slot's externally visible state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

// WorkerState is the explicit per-loop state machine. Status is what the
// operator sees; WorkerState is where the loop actually is.
type WorkerState string

const (
	StateClaimingWork   WorkerState = "claiming_work"
	StateExecuting      WorkerState = "executing"
	StateRequestingMore WorkerState = "requesting_more"
	StatePaused         WorkerState = "paused"
	StateStopped        WorkerState = "stopped"
)

// Slot is the coordinator-owned record for one agent. The queue never
// holds agent state beyond the claimedBy back-reference; everything else
// lives here.
type Slot struct {
	mu sync.Mutex

	id     string
	status Status
	state  WorkerState

	lastCommand     string
	lastExecuteTime time.Time
	executionTime   time.Duration
	iterations      int
	lastError       string
}

func newSlot(id string) *Slot {
	return &Slot{
		id:     id,
		status: StatusIdle,
		state:  StateStopped,
	}
}

// Info is a point-in-time copy of a slot for snapshots and events.
type Info struct {
	ID              string        `json:"id"`
	Status          Status        `json:"status"`
	State           WorkerState   `json:"state"`
	LastCommand     string        `json:"last_command,omitempty"`
	LastExecuteTime time.Time     `json:"last_execute_time,omitempty"`
	ExecutionTime   time.Duration `json:"execution_time"`
	Iterations      int           `json:"iterations"`
	LastError       string        `json:"last_error,omitempty"`
}

// Info returns a copy of the slot's current state.
func (s *Slot) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:              s.id,
		Status:          s.status,
		State:           s.state,
		LastCommand:     s.lastCommand,
		LastExecuteTime: s.lastExecuteTime,
		ExecutionTime:   s.executionTime,
		Iterations:      s.iterations,
		LastError:       s.lastError,
	}
}

func (s *Slot) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Slot) setState(state WorkerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Slot) getStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Slot) recordExecution(command string, duration time.Duration) {
	s.mu.Lock()
	s.lastCommand = command
	s.lastExecuteTime = time.Now()
	s.executionTime += duration
	s.mu.Unlock()
}

func (s *Slot) recordIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations++
	return s.iterations
}

func (s *Slot) recordError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}
