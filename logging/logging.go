// Package logging provides real-time console output for mission monitoring.
// The event stream on the bus is the forensic record; this logger exists so
// an operator tailing the process sees what the swarm is doing without
// subscribing to the bus.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides leveled key=value logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	agentID   string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// NewNop creates a logger that discards all output.
func NewNop() *Logger {
	return &Logger{
		output:   io.Discard,
		minLevel: LevelError,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		agentID:   l.agentID,
	}
}

// WithAgent returns a new logger scoped to the given agent.
func (l *Logger) WithAgent(agentID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		agentID:   agentID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.agentID != "" {
		fieldStr = " agent=" + l.agentID + fieldStr
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Coordination loop helpers ---
// Called by the queue, coordinator, and limiters alongside event broadcast.

// Claim logs an agent claiming an instruction.
func (l *Logger) Claim(agentID string, instructionID uint64, command string) {
	l.Debug("claim", map[string]interface{}{
		"agent":       agentID,
		"instruction": instructionID,
		"command":     truncate(command, 80),
	})
}

// Completed logs a completed instruction.
func (l *Logger) Completed(agentID string, instructionID uint64, duration time.Duration) {
	l.Info("instruction_completed", map[string]interface{}{
		"agent":       agentID,
		"instruction": instructionID,
		"duration":    duration.String(),
	})
}

// Failed logs a failed instruction.
func (l *Logger) Failed(agentID string, instructionID uint64, reason string) {
	l.Warn("instruction_failed", map[string]interface{}{
		"agent":       agentID,
		"instruction": instructionID,
		"reason":      truncate(reason, 120),
	})
}

// Throttled logs a throttle decision.
func (l *Logger) Throttled(agentID, level string, delay time.Duration) {
	l.Debug("throttle", map[string]interface{}{
		"agent": agentID,
		"level": level,
		"delay": delay.String(),
	})
}

// RateLimitWait logs a rate-limiter imposed wait.
func (l *Logger) RateLimitWait(modelID string, wait time.Duration) {
	l.Debug("rate_limit_wait", map[string]interface{}{
		"model": modelID,
		"wait":  wait.String(),
	})
}

// PolicyBlock logs a command rejected by policy.
func (l *Logger) PolicyBlock(agentID, command, reason string) {
	l.Warn("policy_block", map[string]interface{}{
		"agent":   agentID,
		"command": truncate(command, 80),
		"reason":  reason,
	})
}

// MissionEvent logs a mission lifecycle transition.
func (l *Logger) MissionEvent(msg string, fields map[string]interface{}) {
	l.Info(msg, fields)
}

// truncate shortens a string for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
