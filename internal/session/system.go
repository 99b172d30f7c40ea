package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rushi32/IsoCode/internal/tool"
	"github.com/rushi32/IsoCode/pkg/types"
)

// toolCategory groups a tool ID under the Tool Dispatcher's §4.4 category
// listing for the system prompt's categorised tool section.
var toolCategory = map[string]string{
	"read": "file", "write": "file", "edit": "file", "batch": "file",
	"glob": "search/navigation", "grep": "search/navigation", "list": "search/navigation",
	"bash": "shell execution",
	"git":  "git",
	"run_lint": "lint/test", "run_test": "lint/test",
	"memory": "memory",
	"todoread": "task list", "todowrite": "task list",
	"browser": "browser automation",
	"vision":  "vision",
	"webfetch": "web",
}

// categoryOrder fixes a stable, teacher-style presentation order for the
// tool listing regardless of map iteration order.
var categoryOrder = []string{
	"file", "search/navigation", "shell execution", "git", "lint/test",
	"memory", "task list", "browser automation", "vision", "web", "external",
}

// preamble is the fixed description of the directive wire format (spec
// §4.2.1(a)).
const preamble = `You are an autonomous coding agent operating a workspace through a strict
JSON directive protocol. Every reply must be exactly one JSON object with a
"type" field, one of:

  {"type":"thought","content":"..."}
  {"type":"action","tool":"<name>","args":{...}}
  {"type":"diff_request","filePath":"...","diff":"..."}
  {"type":"delegate","tasks":[{"taskText":"...","modelHint":"..."}]}
  {"type":"final","content":"..."}

Never wrap the object in prose or markdown fences. Never emit more than one
object per reply.`

// planningClause is the fixed planning-discipline clause (spec §4.2.1(b)).
const planningClause = `On your first turn, emit exactly one thought whose content begins with the
literal marker "PLAN:" followed by a numbered list of the tasks you intend
to complete. On every subsequent turn where you have made progress, include
a "PROGRESS:" marker (or the phrase "Completed task") in a thought so the
engine can track how many of the planned tasks are done. Do not emit
"final" until every planned task is complete.`

// agentPlusPermissionsClause and agentPermissionsClause are the mode-
// dependent permissions clauses (spec §4.2.1(c)).
const agentPlusPermissionsClause = `You have all permissions granted: write/edit/apply_diff calls execute
immediately. Do not emit diff_request; mutate files directly via action
directives.`

const agentPermissionsClause = `Propose file mutations (write, edit, or any diff) as a diff_request
directive rather than an action. The engine will show the user a unified
diff and resume your turn with the approval decision; continue your plan
after it arrives.`

const workflowClause = `# Workflow and efficiency rules
- Read a file before editing it.
- Prefer surgical edits (edit) over rewriting whole files (write).
- Batch related reads together when you know you will need several files.
- Do not repeat an identical tool call with identical arguments; if a tool
  result did not change anything, try a different approach.`

// SystemPrompt assembles the ReAct engine's deterministic system prompt
// (spec §4.2.1) from the fixed preamble/planning/permissions/tools/workflow
// clauses plus downstream-injected context (§4.1): project context summary,
// project map, project rules, memory primer, and resumable checkpoint.
type SystemPrompt struct {
	Mode          types.Mode
	WorkspaceRoot string
	Registry      *tool.Registry

	// Branch is the workspace's current git branch, supplied by the
	// Manager's vcs.Watcher when the workspace is under git. Left empty it
	// falls back to a one-shot `git branch --show-current` shell-out so
	// callers that build a SystemPrompt without a live watcher (tests, the
	// headless CLI entrypoint) still get a branch line.
	Branch string

	ContextFileNudge  string
	ProjectContext    string
	ProjectMap        string
	ProjectRules      string
	MemoryPrimer      string
	ResumeCheckpoint string
}

// Build renders the complete system prompt text.
func (s *SystemPrompt) Build() string {
	var parts []string
	parts = append(parts, preamble)
	parts = append(parts, planningClause)

	if s.Mode == types.ModeAgentPlus {
		parts = append(parts, agentPlusPermissionsClause)
	} else {
		parts = append(parts, agentPermissionsClause)
	}

	if s.Registry != nil {
		parts = append(parts, s.toolListing())
	}

	parts = append(parts, workflowClause)
	parts = append(parts, s.environmentContext())

	for _, extra := range []string{s.ContextFileNudge, s.ProjectContext, s.ProjectMap, s.ProjectRules, s.MemoryPrimer, s.ResumeCheckpoint} {
		if strings.TrimSpace(extra) != "" {
			parts = append(parts, extra)
		}
	}

	return strings.Join(parts, "\n\n")
}

// toolListing renders a categorised listing of the dispatcher's tools with
// their parameter signatures and descriptions (spec §4.2.1(d)).
func (s *SystemPrompt) toolListing() string {
	byCategory := make(map[string][]tool.Tool)
	for _, t := range s.Registry.List() {
		cat := toolCategory[t.ID()]
		if cat == "" {
			cat = "external"
		}
		byCategory[cat] = append(byCategory[cat], t)
	}

	var b strings.Builder
	b.WriteString("# Available tools\n")
	for _, cat := range categoryOrder {
		tools := byCategory[cat]
		if len(tools) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", cat)
		for _, t := range tools {
			fmt.Fprintf(&b, "- `%s(%s)`: %s\n", t.ID(), string(t.Parameters()), firstLine(t.Description()))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// environmentContext renders the downstream-injected workspace context:
// root path, date, platform, git branch and detected project type.
func (s *SystemPrompt) environmentContext() string {
	var b strings.Builder
	b.WriteString("# Environment\n")
	fmt.Fprintf(&b, "Workspace: %s\n", s.WorkspaceRoot)
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	branch := s.Branch
	if branch == "" {
		branch = gitBranch(s.WorkspaceRoot)
	}
	if branch != "" {
		fmt.Fprintf(&b, "Git branch: %s\n", branch)
	}
	if pt := detectProjectType(s.WorkspaceRoot); pt != "" {
		fmt.Fprintf(&b, "Project type: %s\n", pt)
	}
	return b.String()
}

func gitBranch(dir string) string {
	if dir == "" {
		return ""
	}
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var projectMarkers = map[string]string{
	"go.mod":           "Go",
	"package.json":     "Node.js",
	"Cargo.toml":       "Rust",
	"pyproject.toml":   "Python",
	"requirements.txt": "Python",
}

func detectProjectType(dir string) string {
	if dir == "" {
		return ""
	}
	for marker, name := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return name
		}
	}
	return ""
}

// loadProjectRules reads the first existing rules file among AGENTS.md,
// CLAUDE.md and .isocode/rules.md, matching the teacher's multi-location
// probe (system.go loadCustomRules), generalized to this repo's on-disk
// layout (spec §6: ".isocode/rules.md").
func loadProjectRules(workspaceRoot string) string {
	locations := []string{
		filepath.Join(workspaceRoot, "AGENTS.md"),
		filepath.Join(workspaceRoot, "CLAUDE.md"),
		filepath.Join(workspaceRoot, ".isocode", "rules.md"),
	}
	for _, loc := range locations {
		if content, err := os.ReadFile(loc); err == nil && len(content) > 0 {
			return "# Project rules\n\n" + string(content)
		}
	}
	return ""
}
