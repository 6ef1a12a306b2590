package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/redcell-dev/opswarm/bus"
)

// Sender publishes periodic heartbeats for one agent.
type Sender struct {
	bus      bus.EventBus
	agentID  string
	interval time.Duration

	mu            sync.Mutex
	status        string
	instructionID uint64
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewSender creates a sender for an agent. Interval <= 0 uses
// DefaultInterval.
func NewSender(b bus.EventBus, agentID string, interval time.Duration) *Sender {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sender{
		bus:      b,
		agentID:  agentID,
		interval: interval,
		status:   "idle",
	}
}

// Start begins publishing. The first heartbeat goes out immediately so
// the monitor learns about the agent before the first interval elapses.
func (s *Sender) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.publish()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.publish()
			}
		}
	}()

	return nil
}

// SetStatus updates the status carried in subsequent heartbeats.
func (s *Sender) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetInstruction updates the claimed instruction id; zero clears it.
func (s *Sender) SetInstruction(id uint64) {
	s.mu.Lock()
	s.instructionID = id
	s.mu.Unlock()
}

// Stop halts publishing.
func (s *Sender) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *Sender) publish() {
	s.mu.Lock()
	hb := &Heartbeat{
		AgentID:       s.agentID,
		Status:        s.status,
		InstructionID: s.instructionID,
		Timestamp:     time.Now(),
	}
	s.mu.Unlock()

	data, err := hb.Marshal()
	if err != nil {
		return
	}
	// Publish failures are tolerated; the next tick retries.
	s.bus.Publish(hb.Subject(), data)
}
