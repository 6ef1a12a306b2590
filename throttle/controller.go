package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/redcell-dev/opswarm/events"
	"github.com/redcell-dev/opswarm/logging"
	"github.com/redcell-dev/opswarm/sampler"
)

const (
	// DefaultMaxAgents bounds the tracked per-agent entries.
	DefaultMaxAgents = 15

	// DefaultStaleAfter is how long an untouched entry survives.
	DefaultStaleAfter = 5 * time.Minute

	// DefaultSweepInterval is how often stale entries are purged.
	DefaultSweepInterval = 30 * time.Second
)

// Config holds controller tuning.
type Config struct {
	Thresholds    Thresholds
	Delays        Delays
	MaxAgents     int
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns controller configuration with standard values.
func DefaultConfig() Config {
	return Config{
		Thresholds:    DefaultThresholds(),
		Delays:        DefaultDelays(),
		MaxAgents:     DefaultMaxAgents,
		StaleAfter:    DefaultStaleAfter,
		SweepInterval: DefaultSweepInterval,
	}
}

// agentState is one tracked agent's throttle entry.
type agentState struct {
	level    Level
	lastSeen time.Time
}

// Controller tracks a throttle level per agent, derived from the shared
// resource sampler. Level changes are announced on the event sink.
type Controller struct {
	config   Config
	provider sampler.Provider
	sink     events.Sink
	logger   *logging.Logger

	mu     sync.Mutex
	agents map[string]*agentState

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewController creates a throttle controller. sink and logger may be nil.
func NewController(cfg Config, provider sampler.Provider, sink events.Sink, logger *logging.Logger) *Controller {
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = DefaultMaxAgents
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		config:   cfg,
		provider: provider,
		sink:     sink,
		logger:   logger.WithComponent("throttle"),
		agents:   make(map[string]*agentState),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic stale-entry sweep.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(time.Now())
			}
		}
	}()
}

// Stop halts the sweep goroutine.
func (c *Controller) Stop() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
	})
}

// Update samples current pressure, recomputes the agent's level, and
// returns it. This is the per-iteration entry point for worker loops.
func (c *Controller) Update(agentID string) Level {
	level := Evaluate(c.provider.Sample(), c.config.Thresholds)

	c.mu.Lock()
	st, ok := c.agents[agentID]
	if !ok {
		if len(c.agents) >= c.config.MaxAgents {
			c.evictStalestLocked()
		}
		st = &agentState{}
		c.agents[agentID] = st
	}
	prev := st.level
	st.level = level
	st.lastSeen = time.Now()
	c.mu.Unlock()

	if ok && prev != level {
		c.logger.Throttled(agentID, level.String(), c.config.Delays.DelayFor(level))
		c.sink.Emit(events.New(events.TypeThrottleChanged, agentID, map[string]interface{}{
			"from": prev.String(),
			"to":   level.String(),
		}))
	}

	return level
}

// Level returns the last computed level for an agent without re-sampling.
func (c *Controller) Level(agentID string) Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.agents[agentID]; ok {
		return st.level
	}
	return LevelNone
}

// DelayFor returns the configured delay for a level.
func (c *Controller) DelayFor(level Level) time.Duration {
	return c.config.Delays.DelayFor(level)
}

// Forget drops an agent's entry, for use when the agent is removed.
func (c *Controller) Forget(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.agents, agentID)
}

// Tracked returns the number of tracked agents.
func (c *Controller) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.agents)
}

// sweep purges entries idle beyond the staleness window.
func (c *Controller) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, st := range c.agents {
		if now.Sub(st.lastSeen) > c.config.StaleAfter {
			delete(c.agents, id)
		}
	}
}

// evictStalestLocked removes the entry with the oldest lastSeen. Caller
// holds c.mu.
func (c *Controller) evictStalestLocked() {
	var stalest string
	var oldest time.Time
	for id, st := range c.agents {
		if stalest == "" || st.lastSeen.Before(oldest) {
			stalest = id
			oldest = st.lastSeen
		}
	}
	if stalest != "" {
		delete(c.agents, stalest)
	}
}
