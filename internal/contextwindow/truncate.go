package contextwindow

import (
	"encoding/json"
	"fmt"
)

// SmartTruncate implements the spec §4.3 smart-truncation law: strings
// under the cap pass through unchanged; longer ones keep a head (70% of
// max) and tail (20% of max) joined by a marker naming how much was cut.
func SmartTruncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}

	headLen := int(float64(max) * 0.7)
	tailLen := int(float64(max) * 0.2)
	if headLen+tailLen >= len(s) {
		return s
	}

	omitted := len(s) - headLen - tailLen
	head := s[:headLen]
	tail := s[len(s)-tailLen:]
	return fmt.Sprintf("%s… [%d characters omitted] …%s", head, omitted, tail)
}

// Well-known tool-result field caps (spec §4.3 tool-result truncation).
const (
	maxContentChars = 4000
	maxStdoutChars  = 2000
	maxStderrChars  = 1000
	maxFilesItems   = 80
	maxMatchesItems = 30

	// toolResultSlack is the additional serialized-size allowance beyond
	// 3,000 chars before falling through to whole-object smart truncation.
	toolResultSlack = 500
)

// TruncateToolResult applies the spec's two-phase tool-result truncation:
// first truncate specific well-known fields in place, then — if the
// serialized result is still oversized — smart-truncate the whole
// JSON-encoded object as a string.
func TruncateToolResult(result map[string]any) (map[string]any, string) {
	out := make(map[string]any, len(result))
	for k, v := range result {
		out[k] = v
	}

	if s, ok := out["content"].(string); ok {
		out["content"] = SmartTruncate(s, maxContentChars)
	}
	if s, ok := out["stdout"].(string); ok {
		out["stdout"] = SmartTruncate(s, maxStdoutChars)
	}
	if s, ok := out["stderr"].(string); ok {
		out["stderr"] = SmartTruncate(s, maxStderrChars)
	}
	if arr, ok := out["files"].([]any); ok && len(arr) > maxFilesItems {
		out["files"] = arr[:maxFilesItems]
	}
	if arr, ok := out["matches"].([]any); ok && len(arr) > maxMatchesItems {
		kept := make([]any, 0, maxMatchesItems+1)
		kept = append(kept, arr[:maxMatchesItems]...)
		kept = append(kept, fmt.Sprintf("… %d more matches omitted", len(arr)-maxMatchesItems))
		out["matches"] = kept
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return out, ""
	}
	if len(encoded) <= 3000+toolResultSlack {
		return out, string(encoded)
	}

	return out, SmartTruncate(string(encoded), 3000+toolResultSlack)
}

// TruncateObservation is the convenience entry point used by the ReAct
// engine/dispatcher: it truncates an arbitrary tool-result object (or plain
// string observation) to a string safe to store as a role=tool message.
func TruncateObservation(result any) string {
	switch v := result.(type) {
	case string:
		return SmartTruncate(v, maxContentChars)
	case map[string]any:
		_, s := TruncateToolResult(v)
		return s
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return SmartTruncate(string(encoded), 3000+toolResultSlack)
	}
}
