package contextwindow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rushi32/IsoCode/pkg/types"
)

// MaxCompactionsPerSession caps automatic compaction per spec §4.3.
const MaxCompactionsPerSession = 3

// CompactionThreshold is the fraction of budget usage that triggers
// automatic compaction (spec §4.2.2 step 1 / §4.3).
const CompactionThreshold = 0.75

// Completer is the subset of the LLM Adapter the Context Manager needs to
// generate a compaction summary. internal/provider.Adapter satisfies this
// via its CallSimple method.
type Completer interface {
	CallSimple(ctx context.Context, model string, messages []types.Message, opts CompletionOptions) (string, error)
}

// CompletionOptions mirrors the adapter options relevant to a one-shot call.
type CompletionOptions struct {
	Temperature   float64
	MaxTokens     int
	TimeoutSecs   int
	ExpectJSON    bool
}

const compactionInstruction = `Summarize the conversation below in 2-4 bullet points covering:
- what was asked
- what tools were used
- what changes were made
- what the current state is

Be concise. Respond with plain text bullets only.`

// Compact summarises everything in messages except the system message and
// the last keepTail messages by calling the LLM, and returns the new message
// sequence: [system, summary-observation, ...last keepTail messages...]. On
// LLM failure it falls back to a deterministic concatenation of each user
// message's first 100 characters. The system message (spec §8 invariant 1:
// "the first message has role=system") is carried through untouched and
// never counted against keepTail or handed to the summarizer.
func Compact(ctx context.Context, completer Completer, model string, messages []types.Message, keepTail int) []types.Message {
	var system *types.Message
	rest := make([]types.Message, 0, len(messages))
	for i := range messages {
		if messages[i].Role == types.RoleSystem && system == nil {
			system = &messages[i]
			continue
		}
		rest = append(rest, messages[i])
	}

	if len(rest) <= keepTail {
		return messages
	}

	prefix := rest[:len(rest)-keepTail]
	tail := rest[len(rest)-keepTail:]

	summary, err := summarize(ctx, completer, model, prefix)
	if err != nil {
		summary = fallbackSummary(prefix)
	}

	summaryMsg := types.Message{
		Role:    types.RoleAssistant,
		Content: fmt.Sprintf(`{"type":"observation","content":"[summary of %d messages] %s"}`, len(prefix), escapeForJSON(summary)),
	}

	out := make([]types.Message, 0, 2+len(tail))
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, summaryMsg)
	out = append(out, tail...)
	return out
}

func summarize(ctx context.Context, completer Completer, model string, messages []types.Message) (string, error) {
	if completer == nil {
		return "", fmt.Errorf("no completer configured")
	}
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, SmartTruncate(m.Content, 500))
	}

	prompt := []types.Message{
		{Role: types.RoleSystem, Content: compactionInstruction},
		{Role: types.RoleUser, Content: transcript.String()},
	}
	return completer.CallSimple(ctx, model, prompt, CompletionOptions{Temperature: 0.2, MaxTokens: 512, TimeoutSecs: 60})
}

// fallbackSummary is the deterministic compaction fallback used when the
// LLM call fails: the first 100 characters of each user message.
func fallbackSummary(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role != types.RoleUser {
			continue
		}
		b.WriteString(SmartTruncate(m.Content, 100))
		b.WriteString("; ")
	}
	if b.Len() == 0 {
		return "prior conversation summarized (no user messages found)"
	}
	return b.String()
}

func escapeForJSON(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// ShouldCompact reports whether usage has crossed the auto-compaction
// threshold and the per-session cap has not yet been reached.
func ShouldCompact(system string, messages []types.Message, budget, compactionCount int) bool {
	if compactionCount >= MaxCompactionsPerSession {
		return false
	}
	used := EstimateWithSystem(system, messages)
	return float64(used) >= CompactionThreshold*float64(budget)
}
