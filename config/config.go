// Package config loads mission and runtime configuration from TOML and
// translates it into the per-component configs the coordination core takes
// at construction.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/redcell-dev/opswarm/agent"
	"github.com/redcell-dev/opswarm/errors"
	"github.com/redcell-dev/opswarm/queue"
	"github.com/redcell-dev/opswarm/ratelimit"
	"github.com/redcell-dev/opswarm/throttle"
)

// Duration is a time.Duration that unmarshals from TOML strings like "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full mission configuration.
type Config struct {
	Mission   Mission   `toml:"mission"`
	Queue     Queue     `toml:"queue"`
	RateLimit RateLimit `toml:"ratelimit"`
	Throttle  Throttle  `toml:"throttle"`
	Agents    Agents    `toml:"agents"`
	Bus       Bus       `toml:"bus"`
	Policy    Policy    `toml:"policy"`
}

// Mission identifies the model and objective driving a run.
type Mission struct {
	ModelID   string `toml:"model_id"`
	Objective string `toml:"objective"`
}

// Queue bounds the shared instruction queue.
type Queue struct {
	MaxPending  int `toml:"max_pending"`
	HistorySize int `toml:"history_size"`
}

// RateLimit tunes the per-model token buckets.
type RateLimit struct {
	Capacity       float64  `toml:"capacity"`
	RefillPerSec   float64  `toml:"refill_per_sec"`
	MaxModels      int      `toml:"max_models"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
}

// Throttle tunes the load-based pacing ladder.
type Throttle struct {
	CPULight    float64 `toml:"cpu_light"`
	CPUModerate float64 `toml:"cpu_moderate"`
	CPUHeavy    float64 `toml:"cpu_heavy"`
	CPUPause    float64 `toml:"cpu_pause"`

	MemLight    float64 `toml:"mem_light"`
	MemModerate float64 `toml:"mem_moderate"`
	MemHeavy    float64 `toml:"mem_heavy"`
	MemPause    float64 `toml:"mem_pause"`

	LightDelay    Duration `toml:"light_delay"`
	ModerateDelay Duration `toml:"moderate_delay"`
	HeavyDelay    Duration `toml:"heavy_delay"`
	PauseDelay    Duration `toml:"pause_delay"`
}

// Agents tunes the coordinator.
type Agents struct {
	MaxAgents         int      `toml:"max_agents"`
	ExecTimeout       Duration `toml:"exec_timeout"`
	MaxIterations     int      `toml:"max_iterations"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	StaleClaimAfter   Duration `toml:"stale_claim_after"`
	ModelFailureLimit int      `toml:"model_failure_limit"`
}

// Bus selects the event transport. An empty URL keeps everything
// in-process on the memory bus.
type Bus struct {
	NATSURL string `toml:"nats_url"`
}

// Policy points at an optional custom command-policy file.
type Policy struct {
	RulesPath string `toml:"rules_path"`
}

// Default returns configuration with every component's standard values.
func Default() *Config {
	th := throttle.DefaultThresholds()
	de := throttle.DefaultDelays()
	return &Config{
		Queue: Queue{
			MaxPending:  queue.DefaultMaxPending,
			HistorySize: queue.DefaultHistorySize,
		},
		RateLimit: RateLimit{
			Capacity:       ratelimit.DefaultCapacity,
			RefillPerSec:   ratelimit.DefaultRefillPerSec,
			MaxModels:      ratelimit.DefaultMaxModels,
			InitialBackoff: Duration(ratelimit.DefaultInitialBackoff),
			MaxBackoff:     Duration(ratelimit.DefaultMaxBackoff),
		},
		Throttle: Throttle{
			CPULight:    th.LightCPU,
			CPUModerate: th.ModerateCPU,
			CPUHeavy:    th.HeavyCPU,
			CPUPause:    th.PauseCPU,
			MemLight:    th.LightMem,
			MemModerate: th.ModerateMem,
			MemHeavy:    th.HeavyMem,
			MemPause:    th.PauseMem,

			LightDelay:    Duration(de.Light),
			ModerateDelay: Duration(de.Moderate),
			HeavyDelay:    Duration(de.Heavy),
			PauseDelay:    Duration(de.Pause),
		},
		Agents: Agents{
			MaxAgents:         agent.DefaultMaxAgents,
			ExecTimeout:       Duration(agent.DefaultExecTimeout),
			MaxIterations:     agent.DefaultMaxIterations,
			StaleClaimAfter:   Duration(agent.DefaultStaleClaimAfter),
			ModelFailureLimit: agent.DefaultModelFailureLimit,
		},
	}
}

// StandardPaths returns config file locations in priority order.
func StandardPaths() []string {
	paths := []string{"opswarm.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "opswarm", "config.toml"))
	}
	return paths
}

// Load reads the first config file found in the standard locations.
// A missing file is not an error; defaults are returned.
func Load() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return cfg, path, nil
		}
	}
	return Default(), "", nil
}

// LoadFile reads one config file. Values not present keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput,
			"config "+path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency. Zero values are allowed; the
// component constructors substitute their own defaults.
func (c *Config) Validate() error {
	if c.Mission.ModelID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "mission.model_id is required")
	}
	if c.Queue.MaxPending < 0 || c.Queue.HistorySize < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "queue bounds must not be negative")
	}
	if c.RateLimit.Capacity < 0 || c.RateLimit.RefillPerSec < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "ratelimit values must not be negative")
	}
	if !ladderAscends(c.Throttle.CPULight, c.Throttle.CPUModerate, c.Throttle.CPUHeavy, c.Throttle.CPUPause) {
		return errors.New(errors.ErrCodeInvalidInput, "throttle cpu thresholds must ascend")
	}
	if !ladderAscends(c.Throttle.MemLight, c.Throttle.MemModerate, c.Throttle.MemHeavy, c.Throttle.MemPause) {
		return errors.New(errors.ErrCodeInvalidInput, "throttle mem thresholds must ascend")
	}
	if c.Agents.MaxAgents < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "agents.max_agents must not be negative")
	}
	return nil
}

func ladderAscends(vals ...float64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[i-1] {
			return false
		}
	}
	return true
}

// QueueConfig translates to the queue's constructor config.
func (c *Config) QueueConfig() queue.Config {
	return queue.Config{
		MaxPending:  c.Queue.MaxPending,
		HistorySize: c.Queue.HistorySize,
	}
}

// RateLimitConfig translates to the limiter's constructor config.
func (c *Config) RateLimitConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.Capacity = c.RateLimit.Capacity
	cfg.RefillPerSec = c.RateLimit.RefillPerSec
	cfg.MaxModels = c.RateLimit.MaxModels
	cfg.InitialBackoff = c.RateLimit.InitialBackoff.Std()
	cfg.MaxBackoff = c.RateLimit.MaxBackoff.Std()
	return cfg
}

// ThrottleConfig translates to the throttle controller's constructor config.
func (c *Config) ThrottleConfig() throttle.Config {
	cfg := throttle.DefaultConfig()
	cfg.Thresholds = throttle.Thresholds{
		LightCPU:    c.Throttle.CPULight,
		ModerateCPU: c.Throttle.CPUModerate,
		HeavyCPU:    c.Throttle.CPUHeavy,
		PauseCPU:    c.Throttle.CPUPause,
		LightMem:    c.Throttle.MemLight,
		ModerateMem: c.Throttle.MemModerate,
		HeavyMem:    c.Throttle.MemHeavy,
		PauseMem:    c.Throttle.MemPause,
	}
	cfg.Delays = throttle.Delays{
		Light:    c.Throttle.LightDelay.Std(),
		Moderate: c.Throttle.ModerateDelay.Std(),
		Heavy:    c.Throttle.HeavyDelay.Std(),
		Pause:    c.Throttle.PauseDelay.Std(),
	}
	if c.Agents.MaxAgents > 0 {
		cfg.MaxAgents = c.Agents.MaxAgents
	}
	return cfg
}

// AgentConfig translates to the coordinator's constructor config.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		ModelID:           c.Mission.ModelID,
		Objective:         c.Mission.Objective,
		MaxAgents:         c.Agents.MaxAgents,
		ExecTimeout:       c.Agents.ExecTimeout.Std(),
		MaxIterations:     c.Agents.MaxIterations,
		HeartbeatInterval: c.Agents.HeartbeatInterval.Std(),
		StaleClaimAfter:   c.Agents.StaleClaimAfter.Std(),
		ModelFailureLimit: c.Agents.ModelFailureLimit,
	}
}
