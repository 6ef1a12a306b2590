// Package sampler reads host CPU and memory utilization for the throttle
// controller. Readings come from a background goroutine and are cached, so
// callers on the coordination path never block on the OS.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/redcell-dev/opswarm/logging"
)

// Snapshot is one point-in-time utilization reading.
type Snapshot struct {
	// CPUPercent is overall CPU utilization, 0-100.
	CPUPercent float64

	// MemPercent is physical memory utilization, 0-100.
	MemPercent float64

	// MemUsedMB is physical memory in use, in megabytes.
	MemUsedMB uint64

	// Taken is when the reading was captured.
	Taken time.Time
}

// Provider supplies utilization snapshots. The throttle controller depends
// on this interface; tests substitute a fixed provider.
type Provider interface {
	// Sample returns the most recent snapshot. It never blocks on the OS.
	Sample() Snapshot
}

// Static is a Provider that always returns the same snapshot.
type Static struct {
	Snap Snapshot
}

// Sample implements Provider.
func (s Static) Sample() Snapshot { return s.Snap }

// DefaultInterval is how often the background goroutine refreshes readings.
const DefaultInterval = time.Second

// Sampler polls gopsutil in the background and caches the latest reading.
type Sampler struct {
	interval time.Duration
	logger   *logging.Logger

	mu   sync.RWMutex
	snap Snapshot

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a sampler. Interval <= 0 uses DefaultInterval.
func New(interval time.Duration, logger *logging.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sampler{
		interval: interval,
		logger:   logger.WithComponent("sampler"),
		done:     make(chan struct{}),
	}
}

// Start launches the background polling goroutine. The first reading is
// taken synchronously so Sample never returns a zero snapshot after Start.
func (s *Sampler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.refresh(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()
}

// Stop halts the background goroutine and waits for it to exit.
func (s *Sampler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
}

// Sample returns the cached reading.
func (s *Sampler) Sample() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// refresh takes a fresh OS reading. A failed read keeps the previous
// snapshot; the throttle controller treats a stale reading as-is rather
// than spiking to a default.
func (s *Sampler) refresh(ctx context.Context) {
	snap := Snapshot{Taken: time.Now()}

	// Interval 0 measures since the previous call instead of blocking.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		s.logger.Debug("cpu read failed", map[string]interface{}{"error": err})
		return
	}
	snap.CPUPercent = percents[0]

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		s.logger.Debug("mem read failed", map[string]interface{}{"error": err})
		return
	}
	snap.MemPercent = vm.UsedPercent
	snap.MemUsedMB = vm.Used / (1024 * 1024)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Ensure Sampler implements Provider.
var _ Provider = (*Sampler)(nil)
var _ Provider = Static{}
