// Package shutdown tears a swarm process down in phases: the mission stops
// first so no new work starts, then the monitors, then the transport. Within
// a phase handlers run concurrently; phases run in order.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/redcell-dev/opswarm/logging"
)

// Standard phases, lowest first. A handler registered on PhaseMission
// completes before any PhaseMonitors handler starts.
const (
	// PhaseMission stops the coordinator; in-flight executions finish.
	PhaseMission = 10

	// PhaseMonitors stops the heartbeat monitor, throttle controller,
	// and sampler.
	PhaseMonitors = 20

	// PhaseTransport closes the bus and the findings index last, so
	// earlier phases can still publish.
	PhaseTransport = 30
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates the sequence did not complete in time.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates at least one handler failed. The
	// sequence still runs to completion.
	ErrHandlerFailed = errors.New("one or more shutdown handlers failed")
)

// Handler is one component's teardown step. The context is canceled when
// the overall timeout is reached.
type Handler func(ctx context.Context) error

type registration struct {
	name    string
	phase   int
	handler Handler
}

// Coordinator runs registered handlers phase by phase.
type Coordinator struct {
	timeout time.Duration
	logger  *logging.Logger

	mu       sync.Mutex
	handlers []registration

	once    sync.Once
	done    chan struct{}
	err     error
	sigChan chan os.Signal
}

// New creates a coordinator. timeout <= 0 uses DefaultTimeout; logger may
// be nil.
func New(timeout time.Duration, logger *logging.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		timeout: timeout,
		logger:  logger.WithComponent("shutdown"),
		done:    make(chan struct{}),
		sigChan: make(chan os.Signal, 1),
	}
}

// Register adds a handler to a phase.
func (c *Coordinator) Register(name string, phase int, handler Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: handler})
	c.mu.Unlock()
}

// Shutdown runs the sequence once. Later calls return ErrAlreadyShutdown
// if the first run has not finished yet, or the first run's error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	ran := false
	c.once.Do(func() {
		ran = true
		c.err = c.run(ctx)
		close(c.done)
	})
	if ran {
		return c.err
	}

	select {
	case <-c.done:
		return c.err
	default:
		return ErrAlreadyShutdown
	}
}

// HandleSignals triggers shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-c.sigChan
		c.logger.Info("signal received", map[string]interface{}{"signal": sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.Shutdown(ctx)
	}()
}

// Trigger initiates shutdown as if a signal arrived.
func (c *Coordinator) Trigger() {
	select {
	case c.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when the sequence finishes.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	start := time.Now()
	var failed bool

	for i := 0; i < len(handlers); {
		j := i
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}

		if ctx.Err() != nil {
			return ErrTimeout
		}
		if c.runPhase(ctx, handlers[i:j]) {
			failed = true
		}
		i = j
	}

	c.logger.Info("shutdown complete", map[string]interface{}{
		"duration": time.Since(start).String(),
		"handlers": len(handlers),
	})
	if failed {
		return ErrHandlerFailed
	}
	return nil
}

// runPhase executes one phase's handlers concurrently and reports whether
// any failed.
func (c *Coordinator) runPhase(ctx context.Context, regs []registration) bool {
	errs := make([]error, len(regs))
	var wg sync.WaitGroup

	for i, r := range regs {
		wg.Add(1)
		go func(idx int, reg registration) {
			defer wg.Done()
			if err := reg.handler(ctx); err != nil {
				errs[idx] = err
				c.logger.Warn("shutdown handler failed", map[string]interface{}{
					"handler": reg.name,
					"phase":   reg.phase,
					"error":   err,
				})
			}
		}(i, r)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return true
		}
	}
	return false
}
