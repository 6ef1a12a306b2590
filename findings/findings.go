// Package findings records what agents discover during a mission. Model
// responses mark discoveries with <write>...</write> tags; each extracted
// finding is severity-classified and kept in an in-memory full-text index
// for operator queries. Durable storage is an external concern behind the
// Recorder interface.
package findings

import (
	"regexp"
	"strings"
	"time"
)

// Severity ranks a finding's impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityOrder ranks severities for summaries, highest first.
var severityOrder = []Severity{
	SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo,
}

// Order returns severities from most to least severe.
func Order() []Severity {
	out := make([]Severity, len(severityOrder))
	copy(out, severityOrder)
	return out
}

// Finding is one recorded discovery.
type Finding struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Content   string    `json:"content"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder is the narrow interface the coordinator records findings
// through.
type Recorder interface {
	Record(agentID, content string) (*Finding, error)
}

var writeTagRe = regexp.MustCompile(`(?s)<write>(.*?)</write>`)

// Extract pulls finding texts out of model output. Each <write> block is
// one finding; whitespace is trimmed and empty blocks dropped.
func Extract(text string) []string {
	var out []string
	for _, m := range writeTagRe.FindAllStringSubmatch(text, -1) {
		if f := strings.TrimSpace(m[1]); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Keyword sets for severity classification, checked from most severe
// down. The first matching tier wins.
var severityKeywords = map[Severity][]string{
	SeverityCritical: {
		"critical", "remote code execution", "rce", "sql injection",
		"authentication bypass", "unauthenticated access", "default credentials",
		"command injection",
	},
	SeverityHigh: {
		"high", "privilege escalation", "cross-site scripting", "xss",
		"directory traversal", "path traversal", "file inclusion",
		"exposed database", "credential", "password",
	},
	SeverityMedium: {
		"medium", "misconfiguration", "outdated", "weak cipher",
		"information disclosure", "open redirect", "missing header",
	},
	SeverityLow: {
		"low", "banner", "verbose error", "version disclosure",
	},
}

// Classify assigns a severity from the finding text. Unmatched text is
// informational.
func Classify(content string) Severity {
	s := strings.ToLower(content)
	for _, sev := range severityOrder[:4] {
		for _, kw := range severityKeywords[sev] {
			if strings.Contains(s, kw) {
				return sev
			}
		}
	}
	return SeverityInfo
}
