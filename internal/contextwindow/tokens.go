// Package contextwindow implements the Context Window Manager: token
// estimation, smart truncation, tool-result truncation, trim-to-budget,
// LLM-assisted compaction, cross-session memory and checkpoints (spec §4.3).
package contextwindow

import (
	"github.com/rushi32/IsoCode/pkg/types"
)

// CharsPerToken is the fixed characters-per-token ratio used for estimation.
const CharsPerToken = 3.5

// MessageOverheadTokens is the fixed per-message token overhead added on
// top of the content estimate (role framing, separators).
const MessageOverheadTokens = 4

// EstimateTokens returns a rough token count for a string using the fixed
// 3.5 chars/token ratio.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(float64(len(s))/CharsPerToken) + 1
}

// EstimateMessageTokens returns the token estimate for one message,
// including the per-message overhead.
func EstimateMessageTokens(m types.Message) int {
	return EstimateTokens(m.Content) + MessageOverheadTokens
}

// EstimateMessagesTokens sums the estimate across a slice of messages.
func EstimateMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}

// DefaultBudget returns the usable token budget given a configured context
// window: the window minus the reserve held back for the model's reply.
func DefaultBudget(contextWindow int) int {
	budget := contextWindow - types.ReplyReserveTokens
	if budget < 0 {
		budget = 0
	}
	return budget
}
