package contextwindow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushi32/IsoCode/pkg/types"
)

func TestSmartTruncatePassesThroughShortStrings(t *testing.T) {
	s := "short string"
	assert.Equal(t, s, SmartTruncate(s, 100))
}

func TestSmartTruncateKeepsHeadAndTail(t *testing.T) {
	s := strings.Repeat("a", 500) + "MIDDLE" + strings.Repeat("b", 500)
	out := SmartTruncate(s, 100)
	require.Contains(t, out, "characters omitted")
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 10)))
}

func TestTruncateToolResultCapsWellKnownFields(t *testing.T) {
	result := map[string]any{
		"content": strings.Repeat("x", 5000),
		"stdout":  strings.Repeat("y", 3000),
		"stderr":  strings.Repeat("z", 2000),
	}
	out, _ := TruncateToolResult(result)
	assert.LessOrEqual(t, len(out["content"].(string)), 4100)
	assert.LessOrEqual(t, len(out["stdout"].(string)), 2100)
	assert.LessOrEqual(t, len(out["stderr"].(string)), 1100)
}

func TestTruncateToolResultCapsArrayFields(t *testing.T) {
	files := make([]any, 200)
	for i := range files {
		files[i] = "file.go"
	}
	out, _ := TruncateToolResult(map[string]any{"files": files})
	assert.Len(t, out["files"], 80)
}

func TestTrimForContextWindowRespectsBudget(t *testing.T) {
	system := "you are an assistant"
	var messages []types.Message
	for i := 0; i < 200; i++ {
		messages = append(messages, types.Message{Role: types.RoleUser, Content: strings.Repeat("word ", 50)})
	}

	budget := 500
	kept := TrimForContextWindow(system, messages, budget)
	// kept[0] is the system message itself, so its cost is already folded
	// into EstimateMessagesTokens(kept); summing it again would double count.
	total := EstimateMessagesTokens(kept)
	assert.LessOrEqual(t, total, budget)
}

// TestTrimForContextWindowKeepsSystemMessageWhenScanStopsEarly reproduces the
// real call-site contract (session.Run passes sess.Messages, whose index 0
// is the literal system message, spec §3) and asserts the returned slice
// still opens with role=system even once the newest-to-oldest scan has
// discarded older non-system history to fit budget.
func TestTrimForContextWindowKeepsSystemMessageWhenScanStopsEarly(t *testing.T) {
	system := "you are an assistant with tool instructions"
	messages := []types.Message{
		{Role: types.RoleSystem, Content: system},
	}
	for i := 0; i < 50; i++ {
		messages = append(messages, types.Message{Role: types.RoleUser, Content: strings.Repeat("word ", 80)})
	}
	messages = append(messages, types.Message{Role: types.RoleUser, Content: "most recent message"})

	kept := TrimForContextWindow(system, messages, 200)
	require.NotEmpty(t, kept)
	assert.Equal(t, types.RoleSystem, kept[0].Role)
	assert.Equal(t, system, kept[0].Content)
	assert.Equal(t, "most recent message", kept[len(kept)-1].Content)
}

func TestTrimForContextWindowOversizedSystemPairsWithLastMessageOnly(t *testing.T) {
	system := strings.Repeat("s", 10000)
	messages := []types.Message{
		{Role: types.RoleUser, Content: "first"},
		{Role: types.RoleUser, Content: "last"},
	}
	kept := TrimForContextWindow(system, messages, 10)
	require.Len(t, kept, 2)
	assert.Equal(t, types.RoleSystem, kept[0].Role)
	assert.Equal(t, "last", kept[1].Content)
}

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) CallSimple(ctx context.Context, model string, messages []types.Message, opts CompletionOptions) (string, error) {
	return s.reply, s.err
}

func TestCompactUsesLLMSummaryOnSuccess(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: "do thing one"},
		{Role: types.RoleAssistant, Content: `{"type":"thought","content":"PLAN:\n1. do thing"}`},
		{Role: types.RoleUser, Content: "keep me"},
		{Role: types.RoleAssistant, Content: "keep me too"},
	}
	out := Compact(context.Background(), stubCompleter{reply: "did the thing"}, "model", messages, 2)
	require.Len(t, out, 3)
	assert.Contains(t, out[0].Content, "did the thing")
	assert.Equal(t, "keep me", out[1].Content)
}

func TestCompactFallsBackOnLLMFailure(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: "request A"},
		{Role: types.RoleUser, Content: "request B"},
		{Role: types.RoleUser, Content: "keep"},
		{Role: types.RoleAssistant, Content: "keep too"},
	}
	out := Compact(context.Background(), stubCompleter{err: errors.New("boom")}, "model", messages, 2)
	require.Len(t, out, 3)
	assert.Contains(t, out[0].Content, "request A")
}

func TestCompactIsNoopUnderTailLength(t *testing.T) {
	messages := []types.Message{{Role: types.RoleUser, Content: "only one"}}
	out := Compact(context.Background(), stubCompleter{}, "model", messages, 4)
	assert.Equal(t, messages, out)
}

// TestCompactPreservesSystemMessage reproduces the real call-site contract
// (session.Manager.Compact and SwitchModel pass sess.Messages, whose index 0
// is the literal system message) and asserts compaction never erases it, per
// session invariant 1 (spec §8: "the first message has role=system").
func TestCompactPreservesSystemMessage(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: "you are a coding assistant"},
		{Role: types.RoleUser, Content: "request A"},
		{Role: types.RoleAssistant, Content: "did A"},
		{Role: types.RoleUser, Content: "request B"},
		{Role: types.RoleAssistant, Content: "did B"},
		{Role: types.RoleUser, Content: "keep"},
		{Role: types.RoleAssistant, Content: "keep too"},
	}
	out := Compact(context.Background(), stubCompleter{reply: "summarized"}, "model", messages, 2)
	require.NotEmpty(t, out)
	assert.Equal(t, types.RoleSystem, out[0].Role)
	assert.Equal(t, "you are a coding assistant", out[0].Content)
	assert.Equal(t, "keep too", out[len(out)-1].Content)
}

func TestShouldCompactRespectsCapAndThreshold(t *testing.T) {
	system := "sys"
	messages := []types.Message{{Role: types.RoleUser, Content: strings.Repeat("x", 10000)}}
	assert.True(t, ShouldCompact(system, messages, 1000, 0))
	assert.False(t, ShouldCompact(system, messages, 1000, MaxCompactionsPerSession))
	assert.False(t, ShouldCompact(system, []types.Message{{Role: types.RoleUser, Content: "hi"}}, 100000, 0))
}
