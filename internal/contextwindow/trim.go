package contextwindow

import (
	"github.com/rushi32/IsoCode/pkg/types"
)

// minTailCharsForPartial is the spec's 200-character floor: the oldest
// message that would only partially fit is included as a smart-truncated
// prefix only if at least this many characters of budget remain for it.
const minTailCharsForPartial = 200

// TrimForContextWindow walks messages newest to oldest, keeping everything
// system plus as many recent non-system messages as fit budget (in tokens).
// The oldest message that would only partially fit is included as a
// smart-truncated prefix when at least 200 characters of budget remain for
// it. If system alone exceeds budget, it is smart-truncated and paired with
// only the most recent message.
//
// messages may or may not carry its own literal system-role entry (callers
// pass sess.Messages, whose first element is the session's system message,
// spec §3); any such entry is ignored in the scan below and the system
// argument is always re-prepended to the result, so the returned slice
// always opens with role=system (spec §8 invariant 1) regardless of where
// the newest-to-oldest scan stopped.
func TrimForContextWindow(system string, messages []types.Message, budget int) []types.Message {
	nonSystem := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != types.RoleSystem {
			nonSystem = append(nonSystem, msg)
		}
	}

	systemTokens := EstimateTokens(system) + MessageOverheadTokens
	if systemTokens >= budget {
		truncatedSystem := SmartTruncate(system, int(float64(budget)*CharsPerToken))
		result := []types.Message{{Role: types.RoleSystem, Content: truncatedSystem}}
		if len(nonSystem) > 0 {
			result = append(result, nonSystem[len(nonSystem)-1])
		}
		return result
	}

	remaining := budget - systemTokens
	kept := []types.Message{{Role: types.RoleSystem, Content: system}}
	var tail []types.Message

	for i := len(nonSystem) - 1; i >= 0; i-- {
		msg := nonSystem[i]
		cost := EstimateMessageTokens(msg)
		if cost <= remaining {
			tail = append([]types.Message{msg}, tail...)
			remaining -= cost
			continue
		}

		remainingChars := int(float64(remaining)*CharsPerToken) - MessageOverheadTokens*4
		if remainingChars >= minTailCharsForPartial {
			truncated := msg
			truncated.Content = SmartTruncate(msg.Content, remainingChars)
			tail = append([]types.Message{truncated}, tail...)
		}
		break
	}

	return append(kept, tail...)
}

// EstimateWithSystem returns the total token estimate for a system prompt
// plus a message slice, used by callers deciding whether to trim/compact.
func EstimateWithSystem(system string, messages []types.Message) int {
	return EstimateTokens(system) + MessageOverheadTokens + EstimateMessagesTokens(messages)
}
