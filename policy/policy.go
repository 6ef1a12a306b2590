// Package policy gates instruction commands before execution. Every
// command an agent claims is checked here first: the base command of each
// shell segment must appear in the tool allowlist, and no segment may
// match a destructive pattern. Blocked commands are failed in the queue,
// never executed.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/redcell-dev/opswarm/errors"
)

// destructivePatterns match commands that must never run regardless of
// allowlist membership.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+(-\w*\s+)*(-rf?|-fr?)\s+/(\s|$)`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff|halt)\b`),
	regexp.MustCompile(`(?i)chmod\s+(-\w+\s+)*777\s+/(\s|$)`),
	regexp.MustCompile(`(?i)(curl|wget)\s+.+\|\s*(ba)?sh`),
	regexp.MustCompile(`(?i)\|\s*base64\s+-d\s*\|\s*(ba)?sh`),
	regexp.MustCompile(`(?i)\|\s*(sudo|su)\b`),
}

// Rules customizes the gate beyond the built-in defaults.
type Rules struct {
	// ExtraAllowed are additional permitted base commands.
	ExtraAllowed []string `toml:"extra_allowed"`

	// Denied are base commands blocked even if a category allows them.
	Denied []string `toml:"denied"`

	// DisabledCategories removes whole default categories from the
	// allowlist (e.g. "exploitation" for recon-only engagements).
	DisabledCategories []string `toml:"disabled_categories"`
}

// rulesFile is the TOML document shape.
type rulesFile struct {
	Policy Rules `toml:"policy"`
}

// LoadRules reads gate rules from a TOML file.
func LoadRules(path string) (*Rules, error) {
	var f rulesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput,
			fmt.Sprintf("policy rules %s", path))
	}
	return &f.Policy, nil
}

// Gate checks commands against the allowlist and destructive patterns.
type Gate struct {
	allowed map[string]bool
	denied  map[string]bool
}

// NewGate builds a gate from the default categories and optional rules.
// rules may be nil.
func NewGate(rules *Rules) *Gate {
	g := &Gate{
		allowed: make(map[string]bool),
		denied:  make(map[string]bool),
	}

	disabled := make(map[string]bool)
	if rules != nil {
		for _, c := range rules.DisabledCategories {
			disabled[c] = true
		}
	}
	for category, tools := range DefaultCategories {
		if disabled[category] {
			continue
		}
		for _, t := range tools {
			g.allowed[t] = true
		}
	}
	if rules != nil {
		for _, t := range rules.ExtraAllowed {
			g.allowed[t] = true
		}
		for _, t := range rules.Denied {
			g.denied[t] = true
		}
	}
	return g
}

// Check reports whether a command may execute. A blocked command comes
// back with the reason; every segment of a piped or chained command is
// checked independently.
func (g *Gate) Check(command string) (bool, string) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false, "empty command"
	}

	for _, pattern := range destructivePatterns {
		if pattern.MatchString(cmd) {
			return false, "destructive command pattern"
		}
	}

	for _, segment := range splitSegments(cmd) {
		base := baseCommand(segment)
		if base == "" {
			continue
		}
		if g.denied[base] {
			return false, fmt.Sprintf("%q is denied by policy", base)
		}
		if !g.allowed[base] {
			return false, fmt.Sprintf("%q is not in the tool allowlist", base)
		}
	}

	return true, ""
}

// Err returns a typed BLOCKED error for a failed check.
func (g *Gate) Err(command, reason string) *errors.Error {
	return errors.Blocked(fmt.Sprintf("%s: %s", reason, firstWord(command)))
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// baseCommand extracts the executable name of one shell segment: env
// prefixes are skipped and path prefixes stripped.
func baseCommand(segment string) string {
	segment = strings.TrimSpace(segment)
	words := strings.Fields(segment)
	if len(words) == 0 {
		return ""
	}

	if words[0] == "env" {
		for _, w := range words[1:] {
			if !strings.Contains(w, "=") {
				words = []string{w}
				break
			}
		}
	}

	base := words[0]
	if idx := strings.LastIndex(base, "/"); idx != -1 {
		base = base[idx+1:]
	}
	return base
}

// splitSegments splits a command on pipes, semicolons, and logical
// operators, respecting single and double quotes.
func splitSegments(cmd string) []string {
	var segments []string
	current := ""
	inSingle := false
	inDouble := false

	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			current += string(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			current += string(c)
		case !inSingle && !inDouble:
			rest := cmd[i:]
			if strings.HasPrefix(rest, "&&") || strings.HasPrefix(rest, "||") {
				if s := strings.TrimSpace(current); s != "" {
					segments = append(segments, s)
				}
				current = ""
				i++
				continue
			}
			if c == '|' || c == ';' {
				if s := strings.TrimSpace(current); s != "" {
					segments = append(segments, s)
				}
				current = ""
				continue
			}
			current += string(c)
		default:
			current += string(c)
		}
	}

	if s := strings.TrimSpace(current); s != "" {
		segments = append(segments, s)
	}
	return segments
}
