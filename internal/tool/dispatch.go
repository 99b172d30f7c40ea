package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/internal/permission"
	"github.com/rushi32/IsoCode/pkg/types"
)

// pathArgKeys lists the JSON argument keys the Dispatcher inspects for
// workspace confinement, across every tool whose input may reference a
// filesystem path.
var pathArgKeys = []string{"filePath", "path", "directory"}

// gatedByEdit are tools whose mutation requires the edit permission
// category rather than a bare allow.
var gatedByEdit = map[string]bool{
	"write": true,
	"edit":  true,
}

// Dispatcher is the Tool Dispatcher: it resolves a requested tool by name,
// enforces permission policy (always/ask/never) and workspace path
// confinement, detects doom loops, invokes the tool, and truncates its
// result to a size safe for the conversation.
type Dispatcher struct {
	registry  *Registry
	checker   *permission.Checker
	doomLoop  *permission.DoomLoopDetector
	perm      types.PermissionConfig
	workspace string
}

// NewDispatcher constructs a Dispatcher over a Registry.
func NewDispatcher(registry *Registry, checker *permission.Checker, doomLoop *permission.DoomLoopDetector, perm types.PermissionConfig, workspace string) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		checker:   checker,
		doomLoop:  doomLoop,
		perm:      perm,
		workspace: workspace,
	}
}

// DispatchRequest is one action directive's tool invocation.
type DispatchRequest struct {
	SessionID string
	MessageID string
	CallID    string
	ToolName  string
	Args      map[string]any
	AbortCh   <-chan struct{}

	// AutoMode carries the ReAct engine's autoMode flag (spec §4.4: "ctx
	// carries workspace root, session id, and an autoMode flag"). When set,
	// an "ask" permission category resolves to allow instead of failing —
	// agent-plus sessions run with AutoMode true since the model already
	// has standing approval to mutate files directly.
	AutoMode bool
}

// effectiveAction resolves the configured permission action against
// req.AutoMode: ask fails a session that runs without autoMode and is
// treated as always when autoMode is set. permission.PermissionAction is a
// direct alias of types.PermissionAction, so no translation between
// vocabularies is needed here.
func effectiveAction(configured types.PermissionAction, autoMode bool) permission.PermissionAction {
	if autoMode && configured == types.ActionAsk {
		return permission.ActionAlways
	}
	return configured
}

// Dispatch resolves, gates and executes one tool call, returning the
// observation text recorded on the session's message log.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	t, ok := d.registry.Get(req.ToolName)
	if !ok {
		return "", fmt.Errorf("unknown tool %q; available: %v", req.ToolName, d.registry.IDs())
	}

	if req.CallID == "" {
		req.CallID = ulid.Make().String()
	}

	if err := d.Gate(ctx, req); err != nil {
		return "", err
	}

	args, err := json.Marshal(req.Args)
	if err != nil {
		return "", fmt.Errorf("marshal tool args: %w", err)
	}

	toolCtx := &Context{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		CallID:    req.CallID,
		WorkDir:   d.workspace,
		AbortCh:   req.AbortCh,
		AutoMode:  req.AutoMode,
	}

	result, err := t.Execute(ctx, args, toolCtx)
	if err != nil {
		return "", err
	}

	return d.truncate(result), nil
}

// Gate runs every permission/confinement check Dispatch would apply to req
// without executing the tool — doom-loop detection, workspace path
// confinement, and the write/edit/webfetch category check. It lets a caller
// that needs the tool's raw *Result (rather than Dispatch's truncated
// observation string), such as BatchTool running several calls concurrently,
// still enforce the same policy the single-call path enforces instead of
// calling the registry directly and bypassing permission checks.
func (d *Dispatcher) Gate(ctx context.Context, req DispatchRequest) error {
	if req.CallID == "" {
		req.CallID = ulid.Make().String()
	}

	if d.doomLoop != nil && d.doomLoop.Check(req.SessionID, req.ToolName, req.Args) {
		if err := d.checker.Check(ctx, permission.Request{
			Type:      permission.PermDoomLoop,
			SessionID: req.SessionID,
			MessageID: req.MessageID,
			CallID:    req.CallID,
			Title:     fmt.Sprintf("Repeated call to %s", req.ToolName),
			Metadata:  map[string]any{"tool": req.ToolName, "args": req.Args},
		}, effectiveAction(d.perm.DoomLoop, req.AutoMode)); err != nil {
			return err
		}
	}

	if err := d.checkPathConfinement(ctx, req); err != nil {
		return err
	}

	return d.checkCategoryPermission(ctx, req)
}

// checkCategoryPermission applies the write/edit and webfetch permission
// categories. Bash has its own pattern-based gate wired directly into
// BashTool at registry construction (internal/permission/bash_parser.go).
func (d *Dispatcher) checkCategoryPermission(ctx context.Context, req DispatchRequest) error {
	switch {
	case gatedByEdit[req.ToolName]:
		return d.checker.Check(ctx, permission.Request{
			Type:      permission.PermEdit,
			SessionID: req.SessionID,
			MessageID: req.MessageID,
			CallID:    req.CallID,
			Title:     fmt.Sprintf("%s %v", req.ToolName, req.Args["filePath"]),
			Metadata:  map[string]any{"tool": req.ToolName, "args": req.Args},
		}, effectiveAction(d.perm.Edit, req.AutoMode))

	case req.ToolName == "webfetch":
		return d.checker.Check(ctx, permission.Request{
			Type:      permission.PermWebFetch,
			SessionID: req.SessionID,
			MessageID: req.MessageID,
			CallID:    req.CallID,
			Title:     fmt.Sprintf("Fetch %v", req.Args["url"]),
			Metadata:  map[string]any{"tool": req.ToolName, "args": req.Args},
		}, effectiveAction(d.perm.WebFetch, req.AutoMode))
	}
	return nil
}

// checkPathConfinement gates any tool argument naming a filesystem path
// that resolves outside the workspace root behind the external-directory
// permission category (spec §4.4: "confined to the workspace root").
func (d *Dispatcher) checkPathConfinement(ctx context.Context, req DispatchRequest) error {
	for _, key := range pathArgKeys {
		raw, ok := req.Args[key]
		if !ok {
			continue
		}
		p, ok := raw.(string)
		if !ok || p == "" {
			continue
		}

		resolved, err := permission.ResolvePath(ctx, p, d.workspace)
		if err != nil {
			continue
		}
		if permission.IsWithinDir(resolved, d.workspace) {
			continue
		}

		if err := d.checker.Check(ctx, permission.Request{
			Type:      permission.PermExternalDir,
			SessionID: req.SessionID,
			MessageID: req.MessageID,
			CallID:    req.CallID,
			Pattern:   []string{filepath.Dir(resolved)},
			Title:     fmt.Sprintf("%s references a path outside %s", req.ToolName, d.workspace),
			Metadata:  map[string]any{"tool": req.ToolName, "path": resolved},
		}, effectiveAction(d.perm.ExternalDir, req.AutoMode)); err != nil {
			return err
		}
	}
	return nil
}

// truncate renders a tool Result down to a conversation-safe observation
// string via the Context Manager's tool-result truncation rules.
func (d *Dispatcher) truncate(result *Result) string {
	payload := map[string]any{
		"content": result.Output,
	}
	for k, v := range result.Metadata {
		if _, exists := payload[k]; !exists {
			payload[k] = v
		}
	}
	return contextwindow.TruncateObservation(payload)
}
