package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/redcell-dev/opswarm/bus"
)

// MonitorConfig configures a heartbeat monitor.
type MonitorConfig struct {
	// Timeout before an agent with no heartbeat is presumed dead.
	Timeout time.Duration

	// CheckInterval for the dead-agent checker.
	CheckInterval time.Duration
}

// DefaultMonitorConfig returns configuration with standard values.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Timeout:       DefaultTimeout,
		CheckInterval: time.Second,
	}
}

// Monitor subscribes to all heartbeats and tracks per-agent liveness.
type Monitor struct {
	bus    bus.EventBus
	config MonitorConfig

	mu       sync.RWMutex
	lastSeen map[string]*Heartbeat
	reported map[string]bool
	deadCBs  []func(agentID string)

	running bool
	sub     bus.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor on the given bus.
func NewMonitor(b bus.EventBus, cfg MonitorConfig) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	return &Monitor{
		bus:      b,
		config:   cfg,
		lastSeen: make(map[string]*Heartbeat),
		reported: make(map[string]bool),
	}
}

// Start subscribes to heartbeats and begins the dead-agent checker.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}

	sub, err := m.bus.Subscribe(SubjectPrefix + "*")
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.sub = sub
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-m.sub.Messages():
			if !ok {
				return
			}
			m.receive(msg)
		case <-ticker.C:
			m.checkDead(time.Now())
		}
	}
}

func (m *Monitor) receive(msg *bus.Message) {
	hb, err := Unmarshal(msg.Data)
	if err != nil || hb.AgentID == "" {
		return
	}

	m.mu.Lock()
	m.lastSeen[hb.AgentID] = hb
	delete(m.reported, hb.AgentID)
	m.mu.Unlock()
}

// checkDead reports agents whose last heartbeat is older than the timeout.
// Each death is reported once until the agent is seen again.
func (m *Monitor) checkDead(now time.Time) {
	m.mu.Lock()
	var dead []string
	for agentID, hb := range m.lastSeen {
		if now.Sub(hb.Timestamp) > m.config.Timeout && !m.reported[agentID] {
			m.reported[agentID] = true
			dead = append(dead, agentID)
		}
	}
	callbacks := make([]func(string), len(m.deadCBs))
	copy(callbacks, m.deadCBs)
	m.mu.Unlock()

	for _, agentID := range dead {
		for _, cb := range callbacks {
			cb(agentID)
		}
	}
}

// Alive reports whether the agent sent a heartbeat within the timeout.
// Unknown agents are not alive.
func (m *Monitor) Alive(agentID string) bool {
	m.mu.RLock()
	hb, ok := m.lastSeen[agentID]
	m.mu.RUnlock()

	if !ok {
		return false
	}
	return time.Since(hb.Timestamp) <= m.config.Timeout
}

// LastSeen returns the most recent heartbeat from an agent, or nil.
func (m *Monitor) LastSeen(agentID string) *Heartbeat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen[agentID]
}

// OnDead registers a callback invoked when an agent is presumed dead.
// Callbacks run on the monitor goroutine and must not block.
func (m *Monitor) OnDead(cb func(agentID string)) {
	m.mu.Lock()
	m.deadCBs = append(m.deadCBs, cb)
	m.mu.Unlock()
}

// Forget drops tracking state for an agent, for clean removal.
func (m *Monitor) Forget(agentID string) {
	m.mu.Lock()
	delete(m.lastSeen, agentID)
	delete(m.reported, agentID)
	m.mu.Unlock()
}

// Stop halts monitoring.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	sub := m.sub
	m.mu.Unlock()

	sub.Unsubscribe()
	cancel()
	<-done
	return nil
}
