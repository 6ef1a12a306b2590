// Package ratelimit paces upstream model calls with per-model token
// buckets. Acquire never blocks; it returns the duration the caller should
// suspend before retrying, so agent loops stay cancellable and never sleep
// while holding a lock.
//
// Upstream rate-limit failures shrink a model's effective capacity and
// impose exponential backoff; a run of successful calls restores it. Only
// failures the caller has classified as rate limiting belong here: a
// quota/credits exhaustion is a different condition and must not be fed to
// Penalize.
package ratelimit

import (
	"sync"
	"time"

	"github.com/redcell-dev/opswarm/events"
	"github.com/redcell-dev/opswarm/logging"
)

const (
	// DefaultCapacity is the full bucket size in tokens.
	DefaultCapacity = 3.0

	// DefaultRefillPerSec is the token refill rate.
	DefaultRefillPerSec = 1.0

	// DefaultMaxModels bounds the tracked model identities.
	DefaultMaxModels = 10

	// DefaultStaleAfter is how long an untouched model entry survives.
	DefaultStaleAfter = 10 * time.Minute

	// DefaultSweepInterval is how often stale entries are purged.
	DefaultSweepInterval = time.Minute

	// DefaultInitialBackoff is the first penalty backoff.
	DefaultInitialBackoff = time.Second

	// DefaultMaxBackoff caps the penalty backoff.
	DefaultMaxBackoff = 60 * time.Second

	// DefaultCooldownSuccesses is how many consecutive successful calls
	// undo one penalty step.
	DefaultCooldownSuccesses = 3
)

// Config holds limiter tuning.
type Config struct {
	Capacity          float64
	RefillPerSec      float64
	MaxModels         int
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	CooldownSuccesses int
}

// DefaultConfig returns limiter configuration with standard values.
func DefaultConfig() Config {
	return Config{
		Capacity:          DefaultCapacity,
		RefillPerSec:      DefaultRefillPerSec,
		MaxModels:         DefaultMaxModels,
		StaleAfter:        DefaultStaleAfter,
		SweepInterval:     DefaultSweepInterval,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		CooldownSuccesses: DefaultCooldownSuccesses,
	}
}

// bucket is one model identity's rate state.
type bucket struct {
	tokens     float64
	lastRefill time.Time

	// effectiveCap shrinks under penalty, never below 1 token.
	effectiveCap float64

	backoff      time.Duration
	blockedUntil time.Time
	successRun   int
	penalties    int

	lastSeen time.Time
}

// refill credits tokens for elapsed time, capped at effective capacity.
func (b *bucket) refill(now time.Time, rate float64) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * rate
	if b.tokens > b.effectiveCap {
		b.tokens = b.effectiveCap
	}
	b.lastRefill = now
}

// Status describes a model's current rate state.
type Status struct {
	ModelID           string
	Tokens            float64
	Capacity          float64
	EffectiveCapacity float64
	Backoff           time.Duration
	Penalties         int
}

// Limiter tracks a token bucket per model identity. Safe for concurrent
// use by all agent loops; buckets for the same model are shared.
type Limiter struct {
	config Config
	sink   events.Sink
	logger *logging.Logger

	mu      sync.Mutex
	buckets map[string]*bucket

	nowFunc func() time.Time // for testing
}

// New creates a limiter. sink and logger may be nil.
func New(cfg Config, sink events.Sink, logger *logging.Logger) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.RefillPerSec <= 0 {
		cfg.RefillPerSec = DefaultRefillPerSec
	}
	if cfg.MaxModels <= 0 {
		cfg.MaxModels = DefaultMaxModels
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.CooldownSuccesses <= 0 {
		cfg.CooldownSuccesses = DefaultCooldownSuccesses
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Limiter{
		config:  cfg,
		sink:    sink,
		logger:  logger.WithComponent("ratelimit"),
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
	}
}

// Acquire consumes one token for the model if available and returns zero.
// Otherwise it returns how long the caller should wait before retrying:
// the remaining penalty backoff, or the time until one token refills,
// whichever is later.
func (l *Limiter) Acquire(modelID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b := l.bucketLocked(modelID, now)
	b.lastSeen = now
	b.refill(now, l.config.RefillPerSec)

	if until := b.blockedUntil.Sub(now); until > 0 {
		return until
	}

	if b.tokens >= 1 {
		b.tokens--
		return 0
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / l.config.RefillPerSec * float64(time.Second))
	l.logger.RateLimitWait(modelID, wait)
	return wait
}

// Penalize records an upstream rate-limit failure for the model: effective
// capacity halves (floor one token) and the backoff doubles up to the cap.
// Callers must classify the failure first; credits exhaustion and generic
// errors do not belong here.
func (l *Limiter) Penalize(modelID, reason string) {
	l.mu.Lock()

	now := l.nowFunc()
	b := l.bucketLocked(modelID, now)
	b.lastSeen = now
	b.successRun = 0
	b.penalties++

	b.effectiveCap /= 2
	if b.effectiveCap < 1 {
		b.effectiveCap = 1
	}
	if b.tokens > b.effectiveCap {
		b.tokens = b.effectiveCap
	}

	if b.backoff == 0 {
		b.backoff = l.config.InitialBackoff
	} else {
		b.backoff *= 2
	}
	if b.backoff > l.config.MaxBackoff {
		b.backoff = l.config.MaxBackoff
	}
	b.blockedUntil = now.Add(b.backoff)

	backoff := b.backoff
	l.mu.Unlock()

	l.logger.Warn("model penalized", map[string]interface{}{
		"model":   modelID,
		"backoff": backoff.String(),
		"reason":  reason,
	})
	l.sink.Emit(events.New(events.TypeRateLimitHit, "", map[string]interface{}{
		"model":   modelID,
		"backoff": backoff.String(),
		"reason":  reason,
	}))
}

// RecordSuccess notes a successful upstream call. A run of successes undoes
// one penalty step: effective capacity doubles back toward full and the
// backoff halves, clearing entirely once capacity is restored.
func (l *Limiter) RecordSuccess(modelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b := l.bucketLocked(modelID, now)
	b.lastSeen = now

	if b.effectiveCap >= l.config.Capacity && b.backoff == 0 {
		return
	}

	b.successRun++
	if b.successRun < l.config.CooldownSuccesses {
		return
	}
	b.successRun = 0

	b.effectiveCap *= 2
	if b.effectiveCap >= l.config.Capacity {
		b.effectiveCap = l.config.Capacity
		b.backoff = 0
		b.penalties = 0
	} else {
		b.backoff /= 2
		if b.backoff < l.config.InitialBackoff {
			b.backoff = 0
		}
	}
}

// Status returns the current state for a model, or nil if untracked.
func (l *Limiter) Status(modelID string) *Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[modelID]
	if !ok {
		return nil
	}
	b.refill(l.nowFunc(), l.config.RefillPerSec)

	return &Status{
		ModelID:           modelID,
		Tokens:            b.tokens,
		Capacity:          l.config.Capacity,
		EffectiveCapacity: b.effectiveCap,
		Backoff:           b.backoff,
		Penalties:         b.penalties,
	}
}

// Tracked returns the number of tracked model identities.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep purges entries idle beyond the staleness window. The coordinator
// calls this on its periodic maintenance tick.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.config.StaleAfter {
			delete(l.buckets, id)
		}
	}
}

// bucketLocked returns the bucket for a model, creating it full if absent.
// Caller holds l.mu.
func (l *Limiter) bucketLocked(modelID string, now time.Time) *bucket {
	if b, ok := l.buckets[modelID]; ok {
		return b
	}
	if len(l.buckets) >= l.config.MaxModels {
		l.evictStalestLocked()
	}
	b := &bucket{
		tokens:       l.config.Capacity,
		effectiveCap: l.config.Capacity,
		lastRefill:   now,
		lastSeen:     now,
	}
	l.buckets[modelID] = b
	return b
}

// evictStalestLocked removes the entry with the oldest lastSeen. Caller
// holds l.mu.
func (l *Limiter) evictStalestLocked() {
	var stalest string
	var oldest time.Time
	for id, b := range l.buckets {
		if stalest == "" || b.lastSeen.Before(oldest) {
			stalest = id
			oldest = b.lastSeen
		}
	}
	if stalest != "" {
		delete(l.buckets, stalest)
	}
}
