package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redcell-dev/opswarm/bus"
)

func TestHeartbeatRoundTrip(t *testing.T) {
	hb := &Heartbeat{
		AgentID:       "agent-a1b2c3d4",
		Status:        "executing",
		InstructionID: 7,
		Timestamp:     time.Now(),
	}
	if got := hb.Subject(); got != "heartbeat.agent-a1b2c3d4" {
		t.Errorf("Subject() = %q", got)
	}

	data, err := hb.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.AgentID != hb.AgentID || got.Status != hb.Status || got.InstructionID != 7 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestSenderPublishes(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	sub, err := b.Subscribe("heartbeat.*")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s := NewSender(b, "agent-1", time.Hour)
	s.SetStatus("claiming")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	select {
	case msg := <-sub.Messages():
		hb, err := Unmarshal(msg.Data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if hb.AgentID != "agent-1" || hb.Status != "claiming" {
			t.Errorf("heartbeat = %+v", hb)
		}
	case <-time.After(time.Second):
		t.Fatal("no immediate heartbeat on start")
	}

	if err := s.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second start = %v, want ErrAlreadyStarted", err)
	}
}

func TestSenderStop(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	s := NewSender(b, "agent-1", time.Hour)
	if err := s.Stop(); err != ErrNotStarted {
		t.Errorf("stop before start = %v, want ErrNotStarted", err)
	}

	s.Start(context.Background())
	if err := s.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
}

func TestMonitorTracksLiveness(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	m := NewMonitor(b, DefaultMonitorConfig())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	if m.Alive("agent-1") {
		t.Error("unknown agent reported alive")
	}

	s := NewSender(b, "agent-1", time.Hour)
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for !m.Alive("agent-1") {
		if time.Now().After(deadline) {
			t.Fatal("agent never seen by monitor")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hb := m.LastSeen("agent-1")
	if hb == nil || hb.AgentID != "agent-1" {
		t.Errorf("LastSeen = %+v", hb)
	}
}

func TestMonitorReportsDeadOnce(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	cfg := MonitorConfig{Timeout: 20 * time.Millisecond, CheckInterval: time.Hour}
	m := NewMonitor(b, cfg)

	var mu sync.Mutex
	var deaths []string
	m.OnDead(func(agentID string) {
		mu.Lock()
		deaths = append(deaths, agentID)
		mu.Unlock()
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	// Inject a heartbeat directly, then age past the timeout.
	hb := &Heartbeat{AgentID: "agent-1", Status: "executing", Timestamp: time.Now()}
	data, _ := hb.Marshal()
	b.Publish(hb.Subject(), data)

	deadline := time.Now().Add(time.Second)
	for m.LastSeen("agent-1") == nil {
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never received")
		}
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(30 * time.Millisecond)
	m.checkDead(time.Now())
	m.checkDead(time.Now())

	mu.Lock()
	defer mu.Unlock()
	if len(deaths) != 1 || deaths[0] != "agent-1" {
		t.Errorf("deaths = %v, want exactly one report for agent-1", deaths)
	}
}

func TestMonitorForget(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	m := NewMonitor(b, DefaultMonitorConfig())
	m.lastSeen["agent-1"] = &Heartbeat{AgentID: "agent-1", Timestamp: time.Now()}

	m.Forget("agent-1")
	if m.LastSeen("agent-1") != nil {
		t.Error("agent still tracked after Forget")
	}
}
