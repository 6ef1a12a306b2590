package bus

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, err := b.Subscribe("events.instruction_added")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish("events.instruction_added", []byte("payload")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := receive(t, sub)
	if msg.Subject != "events.instruction_added" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if string(msg.Data) != "payload" {
		t.Errorf("data = %q", msg.Data)
	}
}

func TestMemoryBus_Wildcards(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	tail, err := b.Subscribe("events.>")
	if err != nil {
		t.Fatalf("subscribe tail: %v", err)
	}
	single, err := b.Subscribe("heartbeat.*")
	if err != nil {
		t.Fatalf("subscribe single: %v", err)
	}

	b.Publish("events.agent.status", []byte("a"))
	b.Publish("heartbeat.agent-1", []byte("b"))
	b.Publish("unrelated.subject", []byte("c"))

	if msg := receive(t, tail); msg.Subject != "events.agent.status" {
		t.Errorf("tail got %q", msg.Subject)
	}
	if msg := receive(t, single); msg.Subject != "heartbeat.agent-1" {
		t.Errorf("single got %q", msg.Subject)
	}

	select {
	case msg := <-tail.Messages():
		t.Errorf("tail received unmatched subject %q", msg.Subject)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	var subs []Subscription
	for i := 0; i < 3; i++ {
		sub, err := b.Subscribe("events.>")
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		subs = append(subs, sub)
	}

	b.Publish("events.tick", []byte("x"))

	for i, sub := range subs {
		if msg := receive(t, sub); string(msg.Data) != "x" {
			t.Errorf("subscriber %d got %q", i, msg.Data)
		}
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.Subscribe("events.>")
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	// Channel closes on unsubscribe.
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected closed channel after unsubscribe")
	}

	// Publishing after unsubscribe is fine.
	if err := b.Publish("events.tick", []byte("x")); err != nil {
		t.Errorf("publish after unsubscribe: %v", err)
	}

	// Double unsubscribe is idempotent.
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second unsubscribe: %v", err)
	}
}

func TestMemoryBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemoryBus(Config{BufferSize: 1})
	defer b.Close()

	_, err := b.Subscribe("events.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Fill the buffer and keep publishing; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("events.tick", []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	sub, _ := b.Subscribe("events.>")
	b.Close()

	if err := b.Publish("events.tick", nil); err != ErrClosed {
		t.Errorf("publish after close = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe("events.>"); err != ErrClosed {
		t.Errorf("subscribe after close = %v, want ErrClosed", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected subscription channel closed")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		subject string
		ok      bool
	}{
		{"events.tick", true},
		{"a", true},
		{"", false},
		{"a..b", false},
		{"events.*", false},
		{"events.>", false},
	}
	for _, tt := range tests {
		err := ValidateSubject(tt.subject)
		if tt.ok && err != nil {
			t.Errorf("ValidateSubject(%q) = %v, want nil", tt.subject, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ValidateSubject(%q) = nil, want error", tt.subject)
		}
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		match   bool
	}{
		{"events.tick", "events.tick", true},
		{"events.tick", "events.tock", false},
		{"events.*", "events.tick", true},
		{"events.*", "events.tick.extra", false},
		{"events.>", "events.tick", true},
		{"events.>", "events.tick.extra", true},
		{"events.>", "events", false},
		{"*.tick", "events.tick", true},
	}
	for _, tt := range tests {
		if got := MatchSubject(tt.pattern, tt.subject); got != tt.match {
			t.Errorf("MatchSubject(%q, %q) = %v, want %v",
				tt.pattern, tt.subject, got, tt.match)
		}
	}
}
