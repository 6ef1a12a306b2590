package sampler

import (
	"context"
	"testing"
	"time"
)

func TestStaticProvider(t *testing.T) {
	p := Static{Snap: Snapshot{CPUPercent: 42.5, MemPercent: 60}}
	snap := p.Sample()
	if snap.CPUPercent != 42.5 || snap.MemPercent != 60 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSamplerStartStop(t *testing.T) {
	s := New(50*time.Millisecond, nil)
	s.Start(context.Background())

	snap := s.Sample()
	if snap.Taken.IsZero() {
		t.Error("expected a synchronous first reading")
	}
	if snap.CPUPercent < 0 || snap.CPUPercent > 100 {
		t.Errorf("cpu percent out of range: %v", snap.CPUPercent)
	}
	if snap.MemPercent <= 0 || snap.MemPercent > 100 {
		t.Errorf("mem percent out of range: %v", snap.MemPercent)
	}

	s.Stop()

	// Stop is idempotent.
	s.Stop()
}

func TestSampleDoesNotBlock(t *testing.T) {
	s := New(time.Hour, nil)
	s.Start(context.Background())
	defer s.Stop()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		s.Sample()
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("1000 samples took %v, cached reads should be cheap", elapsed)
	}
}
