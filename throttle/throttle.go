// Package throttle maps sampled resource pressure into discrete delay tiers
// that pace each agent's work-request cycle. Evaluation is a pure function
// of thresholds; per-agent tracking lives in the Controller.
package throttle

import (
	"math/rand"
	"time"

	"github.com/redcell-dev/opswarm/sampler"
)

// Level is a discrete throttle tier.
type Level int

const (
	LevelNone Level = iota
	LevelLight
	LevelModerate
	LevelHeavy
	LevelPause
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLight:
		return "light"
	case LevelModerate:
		return "moderate"
	case LevelHeavy:
		return "heavy"
	case LevelPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Thresholds hold utilization cutoffs, in percent. A sample at or above a
// cutoff maps to at least that level; CPU and memory are evaluated
// independently and the higher level wins.
type Thresholds struct {
	LightCPU    float64
	ModerateCPU float64
	HeavyCPU    float64
	PauseCPU    float64

	LightMem    float64
	ModerateMem float64
	HeavyMem    float64
	PauseMem    float64
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LightCPU:    50,
		ModerateCPU: 70,
		HeavyCPU:    90,
		PauseCPU:    97,

		LightMem:    60,
		ModerateMem: 75,
		HeavyMem:    90,
		PauseMem:    95,
	}
}

// Delays map each level to the pause inserted before the next work request.
type Delays struct {
	Light    time.Duration
	Moderate time.Duration
	Heavy    time.Duration
	Pause    time.Duration
}

// DefaultDelays returns the standard per-level delays.
func DefaultDelays() Delays {
	return Delays{
		Light:    1 * time.Second,
		Moderate: 3 * time.Second,
		Heavy:    8 * time.Second,
		Pause:    60 * time.Second,
	}
}

// Evaluate maps a utilization snapshot to a throttle level. A spike jumps
// directly to the matching level; there is no step-by-step ramp.
func Evaluate(snap sampler.Snapshot, th Thresholds) Level {
	cpu := scaleLevel(snap.CPUPercent, th.LightCPU, th.ModerateCPU, th.HeavyCPU, th.PauseCPU)
	mem := scaleLevel(snap.MemPercent, th.LightMem, th.ModerateMem, th.HeavyMem, th.PauseMem)
	if mem > cpu {
		return mem
	}
	return cpu
}

func scaleLevel(pct, light, moderate, heavy, pause float64) Level {
	switch {
	case pct >= pause:
		return LevelPause
	case pct >= heavy:
		return LevelHeavy
	case pct >= moderate:
		return LevelModerate
	case pct >= light:
		return LevelLight
	default:
		return LevelNone
	}
}

// DelayFor returns the delay for a level. Delays increase monotonically
// with the level; Pause stalls new work requests but never kills in-flight
// execution.
func (d Delays) DelayFor(level Level) time.Duration {
	switch level {
	case LevelLight:
		return d.Light
	case LevelModerate:
		return d.Moderate
	case LevelHeavy:
		return d.Heavy
	case LevelPause:
		return d.Pause
	default:
		return 0
	}
}

// PacingFloor is the minimum inter-iteration delay. Even an unthrottled
// agent paces its requests rather than hammering the upstream model.
const PacingFloor = 500 * time.Millisecond

// jitterFraction spreads pacing delays by up to this fraction either way so
// concurrent agents do not fall into lockstep.
const jitterFraction = 0.30

// Pace combines a throttle delay and a rate-limiter wait into the final
// suspend duration: the larger of the two, floored at PacingFloor, with
// jitter applied. rng may be nil to use the global source.
func Pace(throttleDelay, rateWait time.Duration, rng *rand.Rand) time.Duration {
	d := throttleDelay
	if rateWait > d {
		d = rateWait
	}
	if d < PacingFloor {
		d = PacingFloor
	}

	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	// f in [0,1) -> factor in [1-j, 1+j)
	factor := 1 + jitterFraction*(2*f-1)
	return time.Duration(float64(d) * factor)
}
