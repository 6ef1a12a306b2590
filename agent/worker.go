package agent

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/redcell-dev/opswarm/errors"
	"github.com/redcell-dev/opswarm/heartbeat"
	"github.com/redcell-dev/opswarm/llm"
	"github.com/redcell-dev/opswarm/throttle"
)

// worker drives one agent's loop: claim work, execute it, and when the
// queue drains, request a new batch from the model, gated by the rate
// limiter and throttle controller.
type worker struct {
	m      *Manager
	id     string
	slot   *Slot
	sender *heartbeat.Sender // nil when no bus is wired
	rng    *rand.Rand

	pmu    sync.Mutex
	paused bool
	resume chan struct{}

	modelFailures int // consecutive, reset on success
}

func newWorker(m *Manager, slot *Slot, sender *heartbeat.Sender) *worker {
	return &worker{
		m:      m,
		id:     slot.id,
		slot:   slot,
		sender: sender,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// pause requests suspension before the next claim attempt. In-flight
// execution is never interrupted.
func (w *worker) pause() {
	w.pmu.Lock()
	if !w.paused {
		w.paused = true
		w.resume = make(chan struct{})
	}
	w.pmu.Unlock()
}

func (w *worker) unpause() {
	w.pmu.Lock()
	if w.paused {
		w.paused = false
		close(w.resume)
	}
	w.pmu.Unlock()
}

func (w *worker) isPaused() bool {
	w.pmu.Lock()
	defer w.pmu.Unlock()
	return w.paused
}

// awaitResume blocks until resumed or the context ends. Returns false on
// context end.
func (w *worker) awaitResume(ctx context.Context) bool {
	w.pmu.Lock()
	ch := w.resume
	paused := w.paused
	w.pmu.Unlock()
	if !paused {
		return true
	}

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// run is the loop body, one goroutine per agent.
func (w *worker) run(ctx context.Context) {
	defer func() {
		w.slot.setState(StateStopped)
		if w.slot.getStatus() == StatusRunning {
			w.slot.setStatus(StatusIdle)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if w.isPaused() {
			w.slot.setStatus(StatusPaused)
			w.slot.setState(StatePaused)
			w.hbStatus(string(StatePaused))
			w.m.emitAgentStatus(w.id, StatusPaused)
			if !w.awaitResume(ctx) {
				return
			}
			w.slot.setStatus(StatusIdle)
			w.m.emitAgentStatus(w.id, StatusIdle)
		}

		if n := w.slot.recordIteration(); n > w.m.config.MaxIterations {
			w.m.logger.Warn("iteration limit reached", map[string]interface{}{
				"agent": w.id,
				"limit": w.m.config.MaxIterations,
			})
			w.slot.setStatus(StatusIdle)
			return
		}

		w.slot.setState(StateClaimingWork)
		w.hbStatus(string(StateClaimingWork))

		if in := w.m.deps.Queue.ClaimNext(w.id); in != nil {
			w.execute(in.ID, in.Command)
			continue
		}

		if !w.requestMore(ctx) {
			return
		}
	}
}

// execute runs one claimed instruction and reports the outcome back to
// the queue. Failures never abort the loop.
func (w *worker) execute(id uint64, command string) {
	w.slot.setState(StateExecuting)
	w.slot.setStatus(StatusRunning)
	w.m.emitAgentStatus(w.id, StatusRunning)
	if w.sender != nil {
		w.sender.SetStatus(string(StateExecuting))
		w.sender.SetInstruction(id)
		defer w.sender.SetInstruction(0)
	}

	if w.m.deps.Gate != nil {
		if ok, reason := w.m.deps.Gate.Check(command); !ok {
			w.m.logger.PolicyBlock(w.id, command, reason)
			w.m.deps.Queue.Fail(id, "blocked by policy: "+reason)
			w.slot.setStatus(StatusIdle)
			return
		}
	}

	// The timeout context is deliberately not derived from the mission
	// context: stopping a mission lets in-flight executions finish.
	execCtx, cancel := context.WithTimeout(context.Background(), w.m.config.ExecTimeout)
	start := time.Now()
	output, err := w.m.deps.Executor.Execute(execCtx, command)
	cancel()
	duration := time.Since(start)

	w.slot.recordExecution(command, duration)

	if err != nil {
		w.slot.recordError(err.Error())
		w.m.deps.Queue.Fail(id, err.Error())
	} else {
		w.m.deps.Queue.Complete(id, output)
	}

	w.slot.setStatus(StatusIdle)
	w.m.emitAgentStatus(w.id, StatusIdle)
}

// requestMore asks the model for a fresh batch, pacing by the larger of
// the throttle delay and rate-limiter wait. Returns false when the loop
// should stop: context end, mission complete, credits exhausted, or
// repeated model failure.
func (w *worker) requestMore(ctx context.Context) bool {
	w.slot.setState(StateRequestingMore)
	w.hbStatus(string(StateRequestingMore))

	level := w.m.deps.Throttle.Update(w.id)
	throttleDelay := w.m.deps.Throttle.DelayFor(level)

	for {
		wait := w.m.deps.Limiter.Acquire(w.m.config.ModelID)
		if wait == 0 {
			break
		}
		if !sleepCtx(ctx, throttle.Pace(throttleDelay, wait, w.rng)) {
			return false
		}
	}
	if !sleepCtx(ctx, throttle.Pace(throttleDelay, 0, w.rng)) {
		return false
	}

	batch, err := w.m.deps.Model.RequestInstructions(ctx, llm.Request{
		AgentID:       w.id,
		ModelID:       w.m.config.ModelID,
		Objective:     w.m.config.Objective,
		RecentResults: w.m.recentResults(),
	})
	if err != nil {
		return w.handleModelError(err)
	}

	w.modelFailures = 0
	w.m.deps.Limiter.RecordSuccess(w.m.config.ModelID)

	if w.m.deps.Findings != nil && batch.Raw != "" {
		if _, ferr := w.m.deps.Findings.RecordFromResponse(w.id, batch.Raw); ferr != nil {
			w.m.logger.Warn("finding record failed", map[string]interface{}{
				"agent": w.id,
				"error": ferr,
			})
		}
	}

	if batch.MissionComplete {
		w.m.logger.MissionEvent("agent reported mission complete", map[string]interface{}{
			"agent": w.id,
		})
		w.slot.setStatus(StatusIdle)
		w.m.emitAgentStatus(w.id, StatusIdle)
		return false
	}

	if len(batch.Commands) > 0 {
		if _, aerr := w.m.deps.Queue.Add(batch.Commands); aerr != nil {
			// Queue at capacity: drop the batch, surface to the operator,
			// and let pending work drain before asking again.
			w.m.logger.Warn("batch dropped", map[string]interface{}{
				"agent": w.id,
				"count": len(batch.Commands),
				"error": aerr,
			})
		}
	}
	return true
}

// handleModelError reacts per the failure class. Rate limits penalize the
// bucket and retry; credits exhaustion and persistent failure park the
// agent in Error without touching any other loop.
func (w *worker) handleModelError(err error) bool {
	cerr := llm.ClassifyError(err)
	w.slot.recordError(cerr.Error())

	switch cerr.Code() {
	case errors.ErrCodeNoCredits:
		w.m.logger.Error("model credits exhausted", map[string]interface{}{
			"agent": w.id,
			"model": w.m.config.ModelID,
		})
		w.slot.setStatus(StatusError)
		w.m.emitAgentStatus(w.id, StatusError)
		w.m.emitError(w.id, cerr)
		return false

	case errors.ErrCodeRateLimited:
		w.m.deps.Limiter.Penalize(w.m.config.ModelID, cerr.Error())
		return true

	default:
		w.modelFailures++
		if w.modelFailures >= w.m.config.ModelFailureLimit {
			w.m.logger.Error("model unavailable", map[string]interface{}{
				"agent":    w.id,
				"failures": w.modelFailures,
			})
			w.slot.setStatus(StatusError)
			w.m.emitAgentStatus(w.id, StatusError)
			w.m.emitError(w.id, cerr)
			return false
		}
		return true
	}
}

func (w *worker) hbStatus(status string) {
	if w.sender != nil {
		w.sender.SetStatus(status)
	}
}

// sleepCtx sleeps for d or until the context ends. Returns false on
// context end. Zero and negative durations return immediately.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

