package contextwindow

import (
	"fmt"
	"strings"

	"github.com/rushi32/IsoCode/pkg/types"
)

// RecentMemoriesCount is how many past session summaries feed the
// cross-session memory primer for a new session's system prompt.
const RecentMemoriesCount = 3

// CheckpointMaxChars caps the checkpoint text injected when resuming a
// session (spec §4.1: "capped at 1,500 chars").
const CheckpointMaxChars = 1500

// BuildMemoryPrimer concatenates up to RecentMemoriesCount session
// summaries into a short primer appended to a new session's system prompt.
func BuildMemoryPrimer(summaries []string) string {
	if len(summaries) == 0 {
		return ""
	}
	n := len(summaries)
	if n > RecentMemoriesCount {
		n = RecentMemoriesCount
	}
	var b strings.Builder
	b.WriteString("Recent work in this workspace:\n")
	for _, s := range summaries[:n] {
		b.WriteString("- ")
		b.WriteString(SmartTruncate(s, 400))
		b.WriteString("\n")
	}
	return b.String()
}

// CheckpointInput carries the session facts rendered into a checkpoint.
type CheckpointInput struct {
	SessionID     string
	UserRequests  []string
	RecentThoughts []string
	ToolActions   []string
	PlanText      string
	PlanCompleted int
	PlanTotal     int
}

// BuildCheckpoint renders a human-readable markdown snapshot of session
// state (spec §3 "Checkpoint").
func BuildCheckpoint(in CheckpointInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Checkpoint: %s\n\n", in.SessionID)

	b.WriteString("## User requests\n")
	for _, r := range in.UserRequests {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}

	if in.PlanText != "" {
		fmt.Fprintf(&b, "\n## Plan (%d/%d complete)\n%s\n", in.PlanCompleted, in.PlanTotal, in.PlanText)
	}

	b.WriteString("\n## Recent thoughts\n")
	for _, t := range in.RecentThoughts {
		b.WriteString("- ")
		b.WriteString(SmartTruncate(t, 300))
		b.WriteString("\n")
	}

	b.WriteString("\n## Tool actions\n")
	for _, a := range in.ToolActions {
		b.WriteString("- ")
		b.WriteString(a)
		b.WriteString("\n")
	}

	return b.String()
}

// RenderUserRequests extracts user message contents for checkpoint/summary
// display purposes.
func RenderUserRequests(messages []types.Message) []string {
	var out []string
	for _, m := range messages {
		if m.Role == types.RoleUser {
			out = append(out, SmartTruncate(m.Content, 200))
		}
	}
	return out
}
