// Package agent implements the coordinator that owns the agent slots and
// drives each agent's work loop against the shared instruction queue.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redcell-dev/opswarm/bus"
	"github.com/redcell-dev/opswarm/errors"
	"github.com/redcell-dev/opswarm/events"
	"github.com/redcell-dev/opswarm/findings"
	"github.com/redcell-dev/opswarm/heartbeat"
	"github.com/redcell-dev/opswarm/llm"
	"github.com/redcell-dev/opswarm/logging"
	"github.com/redcell-dev/opswarm/policy"
	"github.com/redcell-dev/opswarm/queue"
	"github.com/redcell-dev/opswarm/ratelimit"
	"github.com/redcell-dev/opswarm/throttle"
)

const (
	// DefaultMaxAgents bounds the slot set.
	DefaultMaxAgents = 15

	// DefaultExecTimeout bounds one command execution.
	DefaultExecTimeout = 10 * time.Minute

	// DefaultMaxIterations bounds one worker loop per mission.
	DefaultMaxIterations = 50

	// DefaultStaleClaimAfter is how long a claim may be held before the
	// reaper considers it stale.
	DefaultStaleClaimAfter = 15 * time.Minute

	// DefaultReapInterval is how often the reaper and sweeps run.
	DefaultReapInterval = 30 * time.Second

	// DefaultModelFailureLimit is the consecutive model failures after
	// which an agent parks in Error.
	DefaultModelFailureLimit = 5
)

// Config holds mission and coordinator tuning.
type Config struct {
	// ModelID identifies the upstream model, keying the rate limiter.
	ModelID string

	// Objective is the mission objective passed to the model.
	Objective string

	MaxAgents         int
	ExecTimeout       time.Duration
	MaxIterations     int
	StaleClaimAfter   time.Duration
	ReapInterval      time.Duration
	ModelFailureLimit int

	// HeartbeatInterval for worker liveness. Zero uses the heartbeat
	// package default.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns coordinator configuration with standard values.
func DefaultConfig() Config {
	return Config{
		MaxAgents:         DefaultMaxAgents,
		ExecTimeout:       DefaultExecTimeout,
		MaxIterations:     DefaultMaxIterations,
		StaleClaimAfter:   DefaultStaleClaimAfter,
		ReapInterval:      DefaultReapInterval,
		ModelFailureLimit: DefaultModelFailureLimit,
	}
}

// Deps are the collaborators the coordinator drives. Queue, Limiter,
// Throttle, Model, and Executor are required; the rest are optional.
type Deps struct {
	Queue    *queue.Queue
	Limiter  *ratelimit.Limiter
	Throttle *throttle.Controller
	Model    llm.ModelCall
	Executor Executor

	// Gate checks commands before execution. Nil allows everything.
	Gate *policy.Gate

	// Findings records tagged discoveries from model responses.
	Findings *findings.Store

	// Bus carries worker heartbeats. Nil disables heartbeats.
	Bus bus.EventBus

	// Monitor supplies agent liveness for stale-claim recovery. Nil
	// makes the reaper treat every overdue claim as stale.
	Monitor *heartbeat.Monitor

	Sink   events.Sink
	Logger *logging.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Queue == nil:
		return errors.New(errors.ErrCodeInvalidInput, "queue is required")
	case d.Limiter == nil:
		return errors.New(errors.ErrCodeInvalidInput, "rate limiter is required")
	case d.Throttle == nil:
		return errors.New(errors.ErrCodeInvalidInput, "throttle controller is required")
	case d.Model == nil:
		return errors.New(errors.ErrCodeInvalidInput, "model call is required")
	case d.Executor == nil:
		return errors.New(errors.ErrCodeInvalidInput, "executor is required")
	}
	return nil
}

// Manager owns the agent slots and the mission lifecycle. Agents join and
// leave at runtime; a freshly added agent claims from the same shared
// queue immediately.
type Manager struct {
	config Config
	deps   Deps
	sink   events.Sink
	logger *logging.Logger

	mu      sync.Mutex
	slots   map[string]*Slot
	workers map[string]*worker
	cancels map[string]context.CancelFunc

	missionCtx    context.Context
	missionCancel context.CancelFunc
	running       bool
	wg            sync.WaitGroup
	reapDone      chan struct{}
}

// NewManager creates a coordinator.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.ModelID == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "model id is required")
	}
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = DefaultMaxAgents
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = DefaultStaleClaimAfter
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	if cfg.ModelFailureLimit <= 0 {
		cfg.ModelFailureLimit = DefaultModelFailureLimit
	}

	sink := deps.Sink
	if sink == nil {
		sink = events.NopSink{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Manager{
		config:  cfg,
		deps:    deps,
		sink:    sink,
		logger:  logger.WithComponent("coordinator"),
		slots:   make(map[string]*Slot),
		workers: make(map[string]*worker),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// newAgentID mints an agent identifier.
func newAgentID() string {
	return "agent-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// AddAgent creates a new agent slot and returns its id. If a mission is
// running the agent's loop starts immediately and competes for pending
// work like any other.
func (m *Manager) AddAgent() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.slots) >= m.config.MaxAgents {
		return "", errors.Newf(errors.ErrCodeQueueFull,
			"agent limit %d reached", m.config.MaxAgents)
	}

	id := newAgentID()
	slot := newSlot(id)
	m.slots[id] = slot

	m.logger.Info("agent added", map[string]interface{}{"agent": id})
	m.sink.Emit(events.New(events.TypeAgentStatus, id, map[string]interface{}{
		"status": string(StatusIdle),
	}))

	if m.running {
		m.startWorkerLocked(slot)
	}
	return id, nil
}

// RemoveAgent stops an agent's loop and discards its slot. In-flight
// execution finishes first; associated throttle and liveness state is
// dropped.
func (m *Manager) RemoveAgent(id string) error {
	m.mu.Lock()
	if _, ok := m.slots[id]; !ok {
		m.mu.Unlock()
		return errors.Newf(errors.ErrCodeNotFound, "agent %s not found", id)
	}
	cancel := m.cancels[id]
	w := m.workers[id]
	delete(m.slots, id)
	delete(m.workers, id)
	delete(m.cancels, id)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if w != nil {
		w.unpause() // a paused worker must observe cancellation
	}

	m.deps.Throttle.Forget(id)
	if m.deps.Monitor != nil {
		m.deps.Monitor.Forget(id)
	}

	m.logger.Info("agent removed", map[string]interface{}{"agent": id})
	m.sink.Emit(events.New(events.TypeAgentStatus, id, map[string]interface{}{
		"status": "removed",
	}))
	return nil
}

// Pause suspends an agent before its next claim attempt.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	w, ok := m.workers[id]
	slot := m.slots[id]
	m.mu.Unlock()

	if slot == nil {
		return errors.Newf(errors.ErrCodeNotFound, "agent %s not found", id)
	}
	if ok {
		w.pause()
	} else {
		slot.setStatus(StatusPaused)
	}
	return nil
}

// Resume releases a paused agent.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	w, ok := m.workers[id]
	slot := m.slots[id]
	m.mu.Unlock()

	if slot == nil {
		return errors.Newf(errors.ErrCodeNotFound, "agent %s not found", id)
	}
	if ok {
		w.unpause()
	} else {
		slot.setStatus(StatusIdle)
	}
	return nil
}

// StartMission starts every agent's loop and the stale-claim reaper.
func (m *Manager) StartMission(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New(errors.ErrCodeConflict, "mission already running")
	}
	m.running = true
	m.missionCtx, m.missionCancel = context.WithCancel(ctx)
	m.reapDone = make(chan struct{})

	for _, slot := range m.slots {
		m.startWorkerLocked(slot)
	}

	go m.reapLoop(m.missionCtx)

	m.logger.MissionEvent("mission started", map[string]interface{}{
		"agents":    len(m.slots),
		"model":     m.config.ModelID,
		"objective": m.config.Objective,
	})
	m.sink.Emit(events.New(events.TypeMissionStarted, "", map[string]interface{}{
		"agents": len(m.slots),
	}))
	return nil
}

// StopMission signals all loops to stop after any in-flight execution and
// waits for them. Pending work and history are preserved; clearing the
// queue is a separate, explicit operation.
func (m *Manager) StopMission() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeConflict, "no mission running")
	}
	m.running = false
	cancel := m.missionCancel
	reapDone := m.reapDone
	workers := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*worker)
	m.cancels = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	cancel()
	for _, w := range workers {
		w.unpause()
	}
	m.wg.Wait()
	<-reapDone

	m.mu.Lock()
	for _, slot := range m.slots {
		if slot.getStatus() != StatusError {
			slot.setStatus(StatusIdle)
		}
		slot.setState(StateStopped)
	}
	m.mu.Unlock()

	m.logger.MissionEvent("mission stopped", nil)
	m.sink.Emit(events.New(events.TypeMissionStopped, "", nil))
	return nil
}

// Running reports whether a mission is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Agents returns a snapshot of every slot.
func (m *Manager) Agents() []Info {
	m.mu.Lock()
	slots := make([]*Slot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, s)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(slots))
	for _, s := range slots {
		infos = append(infos, s.Info())
	}
	return infos
}

// Agent returns one slot's snapshot.
func (m *Manager) Agent(id string) (Info, error) {
	m.mu.Lock()
	slot, ok := m.slots[id]
	m.mu.Unlock()

	if !ok {
		return Info{}, errors.Newf(errors.ErrCodeNotFound, "agent %s not found", id)
	}
	return slot.Info(), nil
}

// startWorkerLocked spawns a worker loop for a slot. Caller holds m.mu
// and has verified a mission is running.
func (m *Manager) startWorkerLocked(slot *Slot) {
	ctx, cancel := context.WithCancel(m.missionCtx)

	var sender *heartbeat.Sender
	if m.deps.Bus != nil {
		sender = heartbeat.NewSender(m.deps.Bus, slot.id, m.config.HeartbeatInterval)
		sender.Start(ctx)
	}

	w := newWorker(m, slot, sender)
	if slot.getStatus() == StatusPaused {
		w.pause()
	} else {
		slot.setStatus(StatusIdle)
	}
	m.workers[slot.id] = w
	m.cancels[slot.id] = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.run(ctx)
		if sender != nil {
			sender.Stop()
		}
	}()
}

// reapLoop periodically fails claims held past the staleness bound by
// agents that are no longer alive, and sweeps the rate limiter's stale
// model entries.
func (m *Manager) reapLoop(ctx context.Context) {
	defer close(m.reapDone)

	ticker := time.NewTicker(m.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapStaleClaims()
			m.deps.Limiter.Sweep(time.Now())
		}
	}
}

func (m *Manager) reapStaleClaims() {
	cutoff := time.Now().Add(-m.config.StaleClaimAfter)
	for _, in := range m.deps.Queue.ExecutingOlderThan(cutoff) {
		if m.deps.Monitor != nil && m.deps.Monitor.Alive(in.ClaimedBy) {
			continue
		}

		cerr := errors.StaleClaim(in.ID, in.ClaimedBy)
		if err := m.deps.Queue.Fail(in.ID, cerr.Error()); err != nil {
			continue // completed in the meantime
		}
		m.logger.Warn("stale claim reaped", map[string]interface{}{
			"instruction": in.ID,
			"agent":       in.ClaimedBy,
		})
		m.emitError(in.ClaimedBy, cerr)
	}
}

// recentResults returns the latest terminal results for model context.
func (m *Manager) recentResults() []string {
	snap := m.deps.Queue.Snapshot()
	const limit = 3

	start := len(snap.History) - limit
	if start < 0 {
		start = 0
	}
	var out []string
	for _, h := range snap.History[start:] {
		if h.Result != "" {
			out = append(out, h.Result)
		}
	}
	return out
}

func (m *Manager) emitAgentStatus(id string, status Status) {
	m.sink.Emit(events.New(events.TypeAgentStatus, id, map[string]interface{}{
		"status": string(status),
	}))
}

func (m *Manager) emitError(agentID string, cerr *errors.Error) {
	m.sink.Emit(events.New(events.TypeError, agentID, map[string]interface{}{
		"code":    cerr.Code().String(),
		"message": cerr.Error(),
	}))
}
