package session

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rushi32/IsoCode/pkg/types"
)

// ParseFailure is returned when none of the directive parser's stages
// (strict JSON, regex key=value salvage, heuristic English salvage) could
// recover a directive from the model's raw reply (spec §7 "ParseFailure").
type ParseFailure struct {
	Raw string
}

func (e *ParseFailure) Error() string {
	return "could not parse a directive from the model reply"
}

// fencedCodeBlock strips a ```json ... ``` or ``` ... ``` wrapper.
var fencedCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// assistantChannelMarker strips common chat-template channel wrappers some
// local models leak into their raw text (e.g. "<|channel|>final<|message|>").
var assistantChannelMarker = regexp.MustCompile(`(?s)<\|[a-zA-Z_]+\|>`)

// ParseDirective interprets one assistant reply as a tagged-union Directive
// (spec §4.2.2 step 5). It tries, in order: strict JSON-object extraction,
// a regex-based key=value salvage, and a heuristic English-to-directive
// mapping. Each successful salvage stage (everything after strict JSON)
// sets Directive.Salvaged.
func ParseDirective(raw string) (*types.Directive, error) {
	if d, ok := parseStrictJSON(raw); ok {
		return d, nil
	}
	if d, ok := parseKeyValueSalvage(raw); ok {
		d.Salvaged = true
		return d, nil
	}
	if d, ok := parseHeuristicSalvage(raw); ok {
		d.Salvaged = true
		return d, nil
	}
	return nil, &ParseFailure{Raw: raw}
}

// parseStrictJSON extracts the largest balanced JSON object from raw
// (stripping fenced code blocks and chat-template markers first) and
// unmarshals it into a Directive.
func parseStrictJSON(raw string) (*types.Directive, bool) {
	text := assistantChannelMarker.ReplaceAllString(raw, "")
	if m := fencedCodeBlock.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	obj := largestBalancedObject(text)
	if obj == "" {
		return nil, false
	}

	var raw2 struct {
		Type     string         `json:"type"`
		Content  string         `json:"content"`
		Tool     string         `json:"tool"`
		Args     map[string]any `json:"args"`
		FilePath string         `json:"filePath"`
		Diff     string         `json:"diff"`
		Tasks    []struct {
			TaskText  string `json:"taskText"`
			ModelHint string `json:"modelHint"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(obj), &raw2); err != nil {
		return nil, false
	}
	if raw2.Type == "" {
		return nil, false
	}

	d := &types.Directive{
		Type:     types.DirectiveType(raw2.Type),
		Content:  raw2.Content,
		Tool:     raw2.Tool,
		Args:     raw2.Args,
		FilePath: raw2.FilePath,
		Diff:     raw2.Diff,
	}
	for _, t := range raw2.Tasks {
		d.Tasks = append(d.Tasks, types.DelegateTask{TaskText: t.TaskText, ModelHint: t.ModelHint})
	}

	switch d.Type {
	case types.DirectiveThought, types.DirectiveAction, types.DirectiveDiffRequest, types.DirectiveDelegate, types.DirectiveFinal:
		return d, true
	default:
		return nil, false
	}
}

// largestBalancedObject scans text for the widest substring that is a
// balanced top-level `{...}` JSON object, tolerating braces nested inside
// string literals.
func largestBalancedObject(text string) string {
	best := ""
	for i, r := range text {
		if r != '{' {
			continue
		}
		if end, ok := matchBalanced(text, i); ok {
			candidate := text[i : end+1]
			if len(candidate) > len(best) {
				best = candidate
			}
		}
	}
	return best
}

// matchBalanced returns the index of the closing brace matching the '{' at
// start, honoring string literals and escapes, or false if unbalanced.
func matchBalanced(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// keyValuePattern matches the regex salvage shape the spec names as an
// example: action="X" args={...}
var keyValuePattern = regexp.MustCompile(`action\s*=\s*"([^"]+)"\s*args\s*=\s*(\{.*\})`)

// parseKeyValueSalvage is the second-stage, lower-precedence parser for
// replies that almost-but-not-quite emitted strict JSON.
func parseKeyValueSalvage(raw string) (*types.Directive, bool) {
	m := keyValuePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
		return nil, false
	}
	return &types.Directive{
		Type: types.DirectiveAction,
		Tool: m[1],
		Args: args,
	}, true
}

// heuristic maps one compiled pattern onto a directive builder.
type heuristic struct {
	pattern *regexp.Regexp
	build   func(m []string) *types.Directive
}

// heuristics is the ordered, lowest-precedence salvage stage: imperative
// English mapped onto an action or thought directive (spec §4.2.2 step 5).
var heuristics = []heuristic{
	{
		pattern: regexp.MustCompile(`(?i)^\s*read (?:the )?file\s+` + "`?" + `([^\s` + "`" + `]+)` + "`?"),
		build: func(m []string) *types.Directive {
			return &types.Directive{Type: types.DirectiveAction, Tool: "read", Args: map[string]any{"filePath": m[1]}}
		},
	},
	{
		pattern: regexp.MustCompile("(?i)^\\s*run\\s+`([^`]+)`"),
		build: func(m []string) *types.Directive {
			return &types.Directive{Type: types.DirectiveAction, Tool: "bash", Args: map[string]any{"command": m[1]}}
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^\s*search for\s+(.+)$`),
		build: func(m []string) *types.Directive {
			return &types.Directive{Type: types.DirectiveAction, Tool: "grep", Args: map[string]any{"pattern": strings.TrimSpace(m[1])}}
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^\s*list files in\s+(.+)$`),
		build: func(m []string) *types.Directive {
			return &types.Directive{Type: types.DirectiveAction, Tool: "list", Args: map[string]any{"path": strings.TrimSpace(m[1])}}
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^\s*(let me|my plan)\b`),
		build: func(m []string) *types.Directive {
			return &types.Directive{Type: types.DirectiveThought, Content: strings.TrimSpace(m[0])}
		},
	},
}

// parseHeuristicSalvage tries each heuristic against the first non-blank
// line of raw.
func parseHeuristicSalvage(raw string) (*types.Directive, bool) {
	line := firstNonBlankLine(raw)
	if line == "" {
		return nil, false
	}
	for _, h := range heuristics {
		if m := h.pattern.FindStringSubmatch(line); m != nil {
			return h.build(m), true
		}
	}
	return nil, false
}

func firstNonBlankLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
