package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RunPrefix marks a line of model output as an executable command.
const RunPrefix = "RUN "

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// batchJSON is the structured batch form some models emit.
type batchJSON struct {
	Commands []string `json:"commands"`
}

// ParseResponse turns raw model output into a Batch. Two response shapes
// are recognized, in order of preference: a JSON object with a "commands"
// array (optionally inside a code fence), and RUN-prefixed lines. The end
// signal may appear anywhere in the text, alongside commands or alone.
func ParseResponse(text string) *Batch {
	b := &Batch{
		Raw:             text,
		MissionComplete: strings.Contains(text, EndSignal),
	}

	if cmds := extractJSONCommands(text); cmds != nil {
		b.Commands = cmds
		return b
	}
	b.Commands = extractRunLines(text)
	return b
}

// extractJSONCommands pulls commands out of a JSON batch, trying the whole
// text first, then fenced blocks, then the object surrounding a "commands"
// key. Returns nil if no valid batch is present.
func extractJSONCommands(text string) []string {
	candidates := []string{strings.TrimSpace(text)}
	for _, m := range codeFenceRe.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj := objectAround(text, `"commands"`); obj != "" {
		candidates = append(candidates, obj)
	}

	for _, c := range candidates {
		var batch batchJSON
		if err := json.Unmarshal([]byte(c), &batch); err != nil || batch.Commands == nil {
			continue
		}
		return cleanCommands(batch.Commands)
	}
	return nil
}

// objectAround returns the brace-balanced JSON object containing the first
// occurrence of key, or "".
func objectAround(text, key string) string {
	at := strings.Index(text, key)
	if at < 0 {
		return ""
	}

	start := strings.LastIndex(text[:at], "{")
	if start < 0 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// extractRunLines collects RUN-prefixed lines in order.
func extractRunLines(text string) []string {
	var commands []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, RunPrefix) {
			continue
		}
		if cmd := strings.TrimSpace(strings.TrimPrefix(line, RunPrefix)); cmd != "" {
			commands = append(commands, cmd)
		}
	}
	return commands
}

// cleanCommands trims entries and drops empties, preserving order.
func cleanCommands(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		// A batch entry may still carry the line prefix.
		c = strings.TrimSpace(strings.TrimPrefix(c, RunPrefix))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
