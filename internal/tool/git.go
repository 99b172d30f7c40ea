package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
)

const gitDescription = `Runs a guarded, read-mostly set of git subcommands against the workspace: status,
diff, log, commit, branch.

Usage:
- subcommand is one of status|diff|log|commit|branch
- args are extra arguments appended after the subcommand (e.g. ["-3"] for log, or
  ["-m","message"] for commit)
- Only the five listed subcommands are allowed; anything else is rejected before a
  process is ever spawned`

// gitAllowedSubcommands is the fixed set of git subcommands the dispatcher may run;
// spec §4.4: "git (status/diff/log/commit/branch implemented as guarded shell invocations)".
var gitAllowedSubcommands = map[string]bool{
	"status": true,
	"diff":   true,
	"log":    true,
	"commit": true,
	"branch": true,
}

// gitTimeout mirrors the shell tool's default deadline (spec §5).
const gitTimeout = 30 * time.Second

// GitTool implements the guarded git subcommand category.
type GitTool struct {
	workDir string
}

// GitInput represents the input for the git tool.
type GitInput struct {
	Subcommand string   `json:"subcommand"`
	Args       []string `json:"args,omitempty"`
}

// NewGitTool creates a new git tool.
func NewGitTool(workDir string) *GitTool {
	return &GitTool{workDir: workDir}
}

func (t *GitTool) ID() string          { return "git" }
func (t *GitTool) Description() string { return gitDescription }

func (t *GitTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"subcommand": {
				"type": "string",
				"enum": ["status", "diff", "log", "commit", "branch"],
				"description": "The git subcommand to run"
			},
			"args": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Extra arguments appended after the subcommand"
			}
		},
		"required": ["subcommand"]
	}`)
}

func (t *GitTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GitInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	sub := strings.ToLower(strings.TrimSpace(params.Subcommand))
	if !gitAllowedSubcommands[sub] {
		return nil, fmt.Errorf("git subcommand %q is not allowed; must be one of status, diff, log, commit, branch", params.Subcommand)
	}

	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}

	args := append([]string{sub}, params.Args...)

	cmdCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "git", args...)
	cmd.Dir = workDir

	output, err := cmd.CombinedOutput()
	result := string(output)
	if len(result) > MaxOutputLength {
		result = result[:MaxOutputLength] + "\n\n(Output truncated)"
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && cmdCtx.Err() == context.DeadlineExceeded {
		result += fmt.Sprintf("\n\n(git %s timed out after %v)", sub, gitTimeout)
	}

	return &Result{
		Title:  fmt.Sprintf("git %s", sub),
		Output: result,
		Metadata: map[string]any{
			"subcommand": sub,
			"exit":       exitCode,
		},
	}, nil
}

func (t *GitTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
