package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
)

const (
	lintTimeout = 45 * time.Second
	testTimeout = 120 * time.Second
)

// projectCommand describes the lint/test invocation for one detected
// project type, resolved by probing for the type's marker file.
type projectCommand struct {
	marker  string
	lint    []string
	test    []string
}

// projectCommands is checked in order; the first marker file found in the
// workspace root decides the command (spec §4.4: "project-type detection
// decides the command").
var projectCommands = []projectCommand{
	{marker: "go.mod", lint: []string{"go", "vet", "./..."}, test: []string{"go", "test", "./..."}},
	{marker: "package.json", lint: []string{"npm", "run", "lint"}, test: []string{"npm", "test"}},
	{marker: "Cargo.toml", lint: []string{"cargo", "clippy"}, test: []string{"cargo", "test"}},
	{marker: "pyproject.toml", lint: []string{"ruff", "check", "."}, test: []string{"pytest"}},
	{marker: "requirements.txt", lint: []string{"ruff", "check", "."}, test: []string{"pytest"}},
}

func detectProjectCommand(workDir string) (*projectCommand, bool) {
	for i := range projectCommands {
		pc := &projectCommands[i]
		if _, err := os.Stat(filepath.Join(workDir, pc.marker)); err == nil {
			return pc, true
		}
	}
	return nil, false
}

// runProjectCommand runs a detected project command with the given timeout,
// used by both LintTool and TestTool.
func runProjectCommand(ctx context.Context, workDir string, argv []string, timeout time.Duration) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("no command to run")
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	result := string(output)
	if len(result) > MaxOutputLength {
		result = result[:MaxOutputLength] + "\n\n(Output truncated)"
	}
	if cmdCtx.Err() == context.DeadlineExceeded {
		result += fmt.Sprintf("\n\n(%s timed out after %v)", argv[0], timeout)
	}

	exitCode := 0
	passed := err == nil
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	return &Result{
		Title:  fmt.Sprintf("%s (%s)", argv[0], joinArgs(argv)),
		Output: result,
		Metadata: map[string]any{
			"command": argv,
			"exit":    exitCode,
			"passed":  passed,
		},
	}, nil
}

func joinArgs(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

const lintDescription = `Runs the workspace's lint command, auto-detected from its project type (go.mod ->
go vet, package.json -> npm run lint, Cargo.toml -> cargo clippy, pyproject.toml/
requirements.txt -> ruff check). No arguments.`

// LintTool implements the lint category of the Tool Dispatcher.
type LintTool struct {
	workDir string
}

// NewLintTool creates a new lint tool.
func NewLintTool(workDir string) *LintTool {
	return &LintTool{workDir: workDir}
}

func (t *LintTool) ID() string          { return "run_lint" }
func (t *LintTool) Description() string { return lintDescription }

func (t *LintTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *LintTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}

	pc, ok := detectProjectCommand(workDir)
	if !ok {
		return nil, fmt.Errorf("could not detect a project type to lint in %s", workDir)
	}
	return runProjectCommand(ctx, workDir, pc.lint, lintTimeout)
}

func (t *LintTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

const testDescription = `Runs the workspace's test command, auto-detected from its project type (go.mod ->
go test ./..., package.json -> npm test, Cargo.toml -> cargo test, pyproject.toml/
requirements.txt -> pytest). No arguments.`

// TestTool implements the test category of the Tool Dispatcher.
type TestTool struct {
	workDir string
}

// NewTestTool creates a new test tool.
func NewTestTool(workDir string) *TestTool {
	return &TestTool{workDir: workDir}
}

func (t *TestTool) ID() string          { return "run_test" }
func (t *TestTool) Description() string { return testDescription }

func (t *TestTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *TestTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}

	pc, ok := detectProjectCommand(workDir)
	if !ok {
		return nil, fmt.Errorf("could not detect a project type to test in %s", workDir)
	}
	return runProjectCommand(ctx, workDir, pc.test, testTimeout)
}

func (t *TestTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
