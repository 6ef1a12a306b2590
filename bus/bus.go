// Package bus provides the broadcast transport that carries coordination
// events and agent heartbeats to observers.
//
// The EventBus interface is pub/sub only: the queue and coordinator publish,
// the excluded transport/UI layer subscribes. Subjects are dot-separated
// NATS-style tokens and subscriptions may use the `*` (one token) and `>`
// (tail) wildcards, so an observer can watch `events.>` while a heartbeat
// monitor watches `heartbeat.*`.
package bus

import (
	"errors"
	"strings"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// EventBus provides publish/subscribe messaging.
type EventBus interface {
	// Publish sends a message to all subscribers matching the subject.
	// Publish never blocks on slow subscribers; messages to a full
	// subscriber buffer are dropped.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject pattern.
	// The pattern may contain `*` and `>` wildcards.
	Subscribe(pattern string) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// The channel is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks that a publish subject is well formed:
// non-empty dot-separated tokens, no wildcards.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" || tok == "*" || tok == ">" {
			return ErrInvalidSubject
		}
	}
	return nil
}

// ValidatePattern checks that a subscription pattern is well formed.
// `>` may only appear as the final token.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return ErrInvalidSubject
	}
	toks := strings.Split(pattern, ".")
	for i, tok := range toks {
		if tok == "" {
			return ErrInvalidSubject
		}
		if tok == ">" && i != len(toks)-1 {
			return ErrInvalidSubject
		}
	}
	return nil
}

// MatchSubject reports whether a concrete subject matches a pattern.
func MatchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
