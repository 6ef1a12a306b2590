// Package queue implements the shared instruction queue at the center of
// the coordination core. All agent loops race on one Queue; every mutation
// runs inside a single critical section so that no two agents can observe
// the same pending instruction as claimable.
package queue

import (
	"sync"
	"time"

	"github.com/redcell-dev/opswarm/errors"
	"github.com/redcell-dev/opswarm/events"
	"github.com/redcell-dev/opswarm/logging"
)

const (
	// DefaultMaxPending bounds the pending sequence.
	DefaultMaxPending = 50

	// DefaultHistorySize bounds the terminal-instruction ring.
	DefaultHistorySize = 25
)

// Config holds queue bounds.
type Config struct {
	MaxPending  int
	HistorySize int
}

// DefaultConfig returns queue configuration with standard bounds.
func DefaultConfig() Config {
	return Config{
		MaxPending:  DefaultMaxPending,
		HistorySize: DefaultHistorySize,
	}
}

// Queue holds pending, executing, and recently finished instructions.
// Claim order is strict FIFO over pending; there is no priority lane.
type Queue struct {
	config Config
	sink   events.Sink
	logger *logging.Logger

	mu        sync.Mutex
	nextID    uint64
	pending   []*Instruction
	executing map[uint64]*Instruction
	history   []*Instruction

	totalAdded   uint64
	totalRemoved uint64
}

// New creates an empty queue. sink and logger may be nil.
func New(cfg Config, sink events.Sink, logger *logging.Logger) *Queue {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		config:    cfg,
		sink:      sink,
		logger:    logger.WithComponent("queue"),
		executing: make(map[uint64]*Instruction),
	}
}

// Add appends a batch of commands as fresh pending instructions and returns
// them in assigned-id order. The batch is all-or-nothing: if appending
// would push pending past its bound, nothing is added and QueueFull is
// returned. The queue does not dedupe by content; that is the caller's
// concern.
func (q *Queue) Add(commands []string) ([]*Instruction, error) {
	if len(commands) == 0 {
		return nil, nil
	}

	q.mu.Lock()
	if len(q.pending)+len(commands) > q.config.MaxPending {
		pending := len(q.pending)
		q.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeQueueFull,
			"batch of %d rejected: %d pending, capacity %d",
			len(commands), pending, q.config.MaxPending)
	}

	now := time.Now()
	added := make([]*Instruction, 0, len(commands))
	for _, cmd := range commands {
		q.nextID++
		in := &Instruction{
			ID:        q.nextID,
			Command:   cmd,
			State:     StatePending,
			CreatedAt: now,
		}
		q.pending = append(q.pending, in)
		q.totalAdded++
		added = append(added, in.clone())
	}
	q.mu.Unlock()

	for _, in := range added {
		q.sink.Emit(events.New(events.TypeInstructionAdded, "", map[string]interface{}{
			"instruction_id": in.ID,
			"command":        in.Command,
		}))
	}
	q.logger.Info("instructions added", map[string]interface{}{
		"count": len(added),
	})

	return added, nil
}

// ClaimNext atomically pops the head of pending for the given agent. It
// returns nil when pending is empty. No two concurrent callers can receive
// the same instruction.
func (q *Queue) ClaimNext(agentID string) *Instruction {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}

	in := q.pending[0]
	q.pending = q.pending[1:]

	in.State = StateExecuting
	in.ClaimedBy = agentID
	in.ClaimedAt = time.Now()
	q.executing[in.ID] = in

	claimed := in.clone()
	q.mu.Unlock()

	q.logger.Claim(agentID, claimed.ID, claimed.Command)
	q.sink.Emit(events.New(events.TypeInstructionClaimed, agentID, map[string]interface{}{
		"instruction_id": claimed.ID,
		"command":        claimed.Command,
	}))

	return claimed
}

// Complete records a successful execution result. The result is truncated
// to MaxResultLen and the instruction moves to history. Returns NotFound
// if the id is not currently executing, including on a second Complete for
// the same id.
func (q *Queue) Complete(id uint64, result string) error {
	return q.finish(id, StateCompleted, result)
}

// Fail records a failed execution with its reason. Failed instructions are
// terminal: they land in history and are never auto-requeued. Requeue is
// the explicit operator path.
func (q *Queue) Fail(id uint64, reason string) error {
	return q.finish(id, StateFailed, reason)
}

func (q *Queue) finish(id uint64, state State, result string) error {
	q.mu.Lock()
	in, ok := q.executing[id]
	if !ok {
		q.mu.Unlock()
		return errors.NotFound(id)
	}
	delete(q.executing, id)

	in.State = state
	in.Result = truncateResult(result)
	in.FinishedAt = time.Now()
	agentID := in.ClaimedBy
	in.ClaimedBy = ""

	q.history = append(q.history, in)
	if len(q.history) > q.config.HistorySize {
		q.history = q.history[len(q.history)-q.config.HistorySize:]
	}
	duration := in.FinishedAt.Sub(in.ClaimedAt)
	q.mu.Unlock()

	if state == StateCompleted {
		q.logger.Completed(agentID, id, duration)
		q.sink.Emit(events.New(events.TypeInstructionCompleted, agentID, map[string]interface{}{
			"instruction_id": id,
			"result":         truncateResult(result),
		}))
	} else {
		q.logger.Failed(agentID, id, result)
		q.sink.Emit(events.New(events.TypeInstructionFailed, agentID, map[string]interface{}{
			"instruction_id": id,
			"reason":         truncateResult(result),
		}))
	}

	return nil
}

// Requeue re-adds a terminal instruction from history as a fresh pending
// instruction with a new id. The history entry is left intact. Returns
// NotFound if the id is not in history, QueueFull if pending is at
// capacity.
func (q *Queue) Requeue(id uint64) (*Instruction, error) {
	q.mu.Lock()

	var source *Instruction
	for _, h := range q.history {
		if h.ID == id {
			source = h
			break
		}
	}
	if source == nil {
		q.mu.Unlock()
		return nil, errors.NotFound(id)
	}
	if len(q.pending)+1 > q.config.MaxPending {
		q.mu.Unlock()
		return nil, errors.QueueFull("requeue rejected: pending at capacity",
			errors.WithInstructionID(id))
	}

	q.nextID++
	in := &Instruction{
		ID:        q.nextID,
		Command:   source.Command,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	q.pending = append(q.pending, in)
	q.totalAdded++
	requeued := in.clone()
	q.mu.Unlock()

	q.sink.Emit(events.New(events.TypeInstructionRequeued, "", map[string]interface{}{
		"instruction_id": requeued.ID,
		"source_id":      id,
		"command":        requeued.Command,
	}))

	return requeued, nil
}

// Remove deletes a pending instruction. In-flight work cannot be removed:
// an executing id returns Conflict, an unknown id returns NotFound.
func (q *Queue) Remove(id uint64) error {
	q.mu.Lock()

	if _, ok := q.executing[id]; ok {
		q.mu.Unlock()
		return errors.Conflict(id, "cannot remove an executing instruction")
	}

	for i, in := range q.pending {
		if in.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.totalRemoved++
			q.mu.Unlock()

			q.sink.Emit(events.New(events.TypeInstructionRemoved, "", map[string]interface{}{
				"instruction_id": id,
			}))
			return nil
		}
	}

	q.mu.Unlock()
	return errors.NotFound(id)
}

// Edit replaces the command of a pending instruction in place. An
// executing id returns Conflict, an unknown id returns NotFound.
func (q *Queue) Edit(id uint64, newCommand string) error {
	q.mu.Lock()

	if _, ok := q.executing[id]; ok {
		q.mu.Unlock()
		return errors.Conflict(id, "cannot edit an executing instruction")
	}

	for _, in := range q.pending {
		if in.ID == id {
			in.Command = newCommand
			q.mu.Unlock()

			q.sink.Emit(events.New(events.TypeInstructionEdited, "", map[string]interface{}{
				"instruction_id": id,
				"command":        newCommand,
			}))
			return nil
		}
	}

	q.mu.Unlock()
	return errors.NotFound(id)
}

// Clear drops all pending and executing instructions. History is preserved
// for post-mortem inspection; stopping a mission never erases it.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := len(q.pending) + len(q.executing)
	q.totalRemoved += uint64(dropped)
	q.pending = nil
	q.executing = make(map[uint64]*Instruction)
	q.mu.Unlock()

	q.sink.Emit(events.New(events.TypeQueueCleared, "", map[string]interface{}{
		"dropped": dropped,
	}))
	q.logger.Info("queue cleared", map[string]interface{}{
		"dropped": dropped,
	})
}

// Snapshot is a consistent read-only view of the queue.
type Snapshot struct {
	Pending   []*Instruction `json:"pending"`
	Executing []*Instruction `json:"executing"`
	History   []*Instruction `json:"history"`

	PendingCount   int `json:"pending_count"`
	ExecutingCount int `json:"executing_count"`

	TotalAdded   uint64 `json:"total_added"`
	TotalRemoved uint64 `json:"total_removed"`
}

// Snapshot returns a deep copy of the queue state, taken under the same
// critical section as mutations so it can never observe a torn state.
// Executing entries are ordered by id.
func (q *Queue) Snapshot() *Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := &Snapshot{
		Pending:        make([]*Instruction, 0, len(q.pending)),
		Executing:      make([]*Instruction, 0, len(q.executing)),
		History:        make([]*Instruction, 0, len(q.history)),
		PendingCount:   len(q.pending),
		ExecutingCount: len(q.executing),
		TotalAdded:     q.totalAdded,
		TotalRemoved:   q.totalRemoved,
	}
	for _, in := range q.pending {
		s.Pending = append(s.Pending, in.clone())
	}
	for _, in := range q.executing {
		s.Executing = append(s.Executing, in.clone())
	}
	for i := 1; i < len(s.Executing); i++ {
		for j := i; j > 0 && s.Executing[j-1].ID > s.Executing[j].ID; j-- {
			s.Executing[j-1], s.Executing[j] = s.Executing[j], s.Executing[j-1]
		}
	}
	for _, in := range q.history {
		s.History = append(s.History, in.clone())
	}
	return s
}

// ExecutingOlderThan returns copies of executing instructions claimed
// before the cutoff. The coordinator's stale-claim reaper uses this; the
// queue itself has no liveness knowledge.
func (q *Queue) ExecutingOlderThan(cutoff time.Time) []*Instruction {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stale []*Instruction
	for _, in := range q.executing {
		if in.ClaimedAt.Before(cutoff) {
			stale = append(stale, in.clone())
		}
	}
	return stale
}

// Len returns the pending count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight returns the executing count.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.executing)
}
