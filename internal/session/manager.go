// Package session implements the Session Manager and ReAct Control Loop
// (spec §4.1, §4.2): a process-wide registry of in-flight Sessions, the
// per-step directive loop that drives the LLM Adapter and Tool Dispatcher,
// and the collaborators (system prompt rendering, directive parsing, plan
// tracking) that make the loop coherent.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rushi32/IsoCode/internal/codebase"
	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/internal/delegation"
	"github.com/rushi32/IsoCode/internal/mcp"
	"github.com/rushi32/IsoCode/internal/permission"
	"github.com/rushi32/IsoCode/internal/provider"
	"github.com/rushi32/IsoCode/internal/storage"
	"github.com/rushi32/IsoCode/internal/tool"
	"github.com/rushi32/IsoCode/internal/vcs"
	"github.com/rushi32/IsoCode/pkg/types"
)

// Workspace bundles the per-workspace-root collaborators the Session
// Manager needs: persisted state, the tool registry/dispatcher bound to
// that root, and the on-demand codebase index. Built lazily and cached by
// root so a single server process can serve more than one workspace.
type Workspace struct {
	Root       string
	Store      *storage.WorkspaceStore
	Registry   *tool.Registry
	Dispatcher *tool.Dispatcher
	Index      *codebase.Index

	// VCS tracks the workspace's current git branch via fsnotify on .git,
	// publishing event.VcsBranchUpdated on change, and is nil when root
	// isn't a git repository.
	VCS *vcs.Watcher
}

// Manager is the Session Manager: a process-wide registry mapping session
// identifiers to Sessions (spec §4.1). It owns no goroutines of its own;
// all concurrency lives in the HTTP handlers that call into it.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*types.Session
	workspaces map[string]*Workspace

	cfg      types.Config
	provider *provider.Adapter
	checker  *permission.Checker
	doomLoop *permission.DoomLoopDetector
	mcp      *mcp.Client
	pool     *delegation.Pool
}

// NewManager constructs a Manager over a snapshot of the runtime config and
// the shared provider adapter/permission checker/MCP client. Per spec §9's
// resolved Open Question 3, this cfg snapshot is what each OpenOrGet-ed
// session's Agent captures; later /config updates only affect sessions
// opened afterward.
func NewManager(cfg types.Config, prov *provider.Adapter, checker *permission.Checker, doomLoop *permission.DoomLoopDetector, mcpClient *mcp.Client) *Manager {
	m := &Manager{
		sessions:   make(map[string]*types.Session),
		workspaces: make(map[string]*Workspace),
		cfg:        cfg,
		provider:   prov,
		checker:    checker,
		doomLoop:   doomLoop,
		mcp:        mcpClient,
	}
	m.pool = delegation.NewPool(m)
	return m
}

// workspaceFor lazily builds and caches the Workspace bundle for root.
func (m *Manager) workspaceFor(root string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[root]; ok {
		return ws
	}

	store := storage.NewWorkspaceStore(root)
	kv := storage.New(root + "/.isocode")
	registry := tool.DefaultRegistry(root, kv, m.checker, m.cfg.Permission, m.provider, m.cfg.VisionModel)
	if m.mcp != nil {
		mcp.RegisterMCPTools(m.mcp, registry)
	}
	dispatcher := tool.NewDispatcher(registry, m.checker, m.doomLoop, m.cfg.Permission, root)
	if bt, ok := registry.Get("batch"); ok {
		if batch, ok := bt.(*tool.BatchTool); ok {
			batch.SetDispatcher(dispatcher)
		}
	}

	ws := &Workspace{
		Root:       root,
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Index:      codebase.New(root),
	}
	if watcher, err := vcs.NewWatcher(root); err == nil && watcher != nil {
		watcher.Start()
		ws.VCS = watcher
	}
	m.workspaces[root] = ws
	return ws
}

func newID() string { return ulid.Make().String() }

// OpenOrGet returns the existing Session for id, or constructs a fresh one
// whose system message is the rendered agent prompt plus downstream context
// (spec §4.1).
func (m *Manager) OpenOrGet(ctx context.Context, id string, mode types.Mode, model, workspaceRoot, initialUserMessage string, explicitContext bool) (*types.Session, bool, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		if initialUserMessage != "" {
			sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleUser, Content: initialUserMessage, CreatedAt: time.Now()})
		}
		return sess, false, nil
	}
	m.mu.Unlock()

	ws := m.workspaceFor(workspaceRoot)

	sysPrompt := m.renderSystemPrompt(ctx, ws, mode, workspaceRoot, id)

	userContent := initialUserMessage
	if !explicitContext {
		if extra := m.gatherRelevanceContext(ws, initialUserMessage); extra != "" {
			userContent = initialUserMessage + "\n\n" + extra
		}
	}

	sess := &types.Session{
		ID:            id,
		Model:         model,
		Mode:          mode,
		WorkspaceRoot: workspaceRoot,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
		Messages: []types.Message{
			{ID: newID(), Role: types.RoleSystem, Content: sysPrompt, CreatedAt: time.Now()},
			{ID: newID(), Role: types.RoleUser, Content: userContent, CreatedAt: time.Now()},
		},
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess, true, nil
}

// renderSystemPrompt builds the system message per §4.2.1 plus the
// downstream-injected context named in §4.1: project-context summary,
// project map, project rules, memory primer, and a resumable checkpoint
// (capped at 1,500 chars).
func (m *Manager) renderSystemPrompt(ctx context.Context, ws *Workspace, mode types.Mode, workspaceRoot, sessionID string) string {
	sp := &SystemPrompt{
		Mode:          mode,
		WorkspaceRoot: workspaceRoot,
		Registry:      ws.Registry,
		ProjectRules:  loadProjectRules(workspaceRoot),
	}
	if ws.VCS != nil {
		sp.Branch = ws.VCS.CurrentBranch()
	}

	if pc, err := ws.Store.LoadProjectContext(ctx); err == nil && len(pc) > 0 {
		sp.ProjectContext = summarizeProjectContext(pc)
	}

	if idx, err := ws.Index.Get(); err == nil && idx != nil {
		sp.ProjectMap = summarizeFileIndex(idx)
	}

	if recs, err := ws.Store.RecentMemories(ctx, contextwindow.RecentMemoriesCount); err == nil && len(recs) > 0 {
		var summaries []string
		for _, r := range recs {
			summaries = append(summaries, r.Summary)
		}
		sp.MemoryPrimer = contextwindow.BuildMemoryPrimer(summaries)
	}

	if cp, err := ws.Store.ReadCheckpoint(sessionID, contextwindow.CheckpointMaxChars); err == nil && cp != "" {
		sp.ResumeCheckpoint = "# Resumed from checkpoint\n\n" + cp
	}

	return sp.Build()
}

func summarizeProjectContext(entries map[string]types.ProjectContextEntry) string {
	if len(entries) == 0 {
		return ""
	}
	out := "# Project context\n"
	for k, v := range entries {
		out += fmt.Sprintf("- %s: %s\n", k, contextwindow.SmartTruncate(v.Value, 200))
	}
	return out
}

func summarizeFileIndex(idx *types.FileIndex) string {
	if idx == nil || idx.TotalCount == 0 {
		return ""
	}
	return fmt.Sprintf("# Project map\n%d files indexed.", idx.TotalCount)
}

// gatherRelevanceContext auto-gathers up to 3,000 chars of file context
// relevant to msg when the caller attached none explicitly (spec §4.1).
func (m *Manager) gatherRelevanceContext(ws *Workspace, msg string) string {
	idx, err := ws.Index.Get()
	if err != nil || idx == nil {
		return ""
	}
	budget := 3000
	out := "# Relevant context\n"
	for name, preview := range idx.KeyFiles {
		if budget <= 0 {
			break
		}
		chunk := fmt.Sprintf("## %s\n%s\n", name, contextwindow.SmartTruncate(preview, 500))
		if len(chunk) > budget {
			chunk = chunk[:budget]
		}
		out += chunk
		budget -= len(chunk)
	}
	if out == "# Relevant context\n" {
		return ""
	}
	return out
}

// Get returns an existing session without creating one.
func (m *Manager) Get(id string) (*types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Active returns a snapshot of every session currently held in the
// registry, for the server boundary's GET /sessions (spec §6: "{active:[…],
// saved:[…]}").
func (m *Manager) Active() []*types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Store exposes the persisted-state facade for a workspace root, lazily
// building the Workspace bundle like any other session operation. Used by
// the server boundary's saved-conversation and codebase-index routes,
// which don't otherwise need a live Session.
func (m *Manager) Store(workspaceRoot string) *storage.WorkspaceStore {
	return m.workspaceFor(workspaceRoot).Store
}

// Index exposes the codebase index for a workspace root (spec §6 GET
// /codebase, POST /codebase/reindex).
func (m *Manager) Index(workspaceRoot string) *codebase.Index {
	return m.workspaceFor(workspaceRoot).Index
}

// Remove deletes a session from the registry (spec §4.1: session lifecycle
// ends on terminal final, explicit clear, or process exit).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Stop marks a session for cooperative termination (spec §4.1 `stop(id)`).
func (m *Manager) Stop(id string) error {
	sess, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.RequestStop()
	return nil
}

// ResumeWithDecision applies an approve/reject decision to a session's
// pending diff and continues the ReAct loop (spec §4.1 `resume-with-
// decision`). Returns the session so the caller can stream the
// continuation.
func (m *Manager) ResumeWithDecision(ctx context.Context, id string, decision string) (*types.Session, error) {
	sess, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if !sess.HasPending() {
		return nil, fmt.Errorf("no pending diff")
	}

	pending := sess.TakePending()
	ws := m.workspaceFor(sess.WorkspaceRoot)

	var observation string
	switch decision {
	case "approve":
		observation = "User APPROVED. " + m.applyPendingDiff(ctx, ws, id, pending)
	case "reject":
		observation = "User REJECTED the proposed change."
	default:
		return nil, fmt.Errorf("invalid decision %q", decision)
	}

	sess.Messages = append(sess.Messages, types.Message{
		ID: newID(), Role: types.RoleTool, Content: observation, CreatedAt: time.Now(),
	})
	return sess, nil
}

// applyPendingDiff reads the file's current content directly (the
// dispatcher's "read" tool returns a truncated/JSON-wrapped observation,
// not a diffable raw string), applies the approved unified diff
// (tool.ApplyUnifiedDiff), and writes the result back through the
// dispatcher's write tool, which only accepts whole file content — the
// diff itself is never a valid write argument.
func (m *Manager) applyPendingDiff(ctx context.Context, ws *Workspace, sessionID string, pending *types.PendingDiff) string {
	raw, _ := os.ReadFile(pending.FilePath)

	after, err := tool.ApplyUnifiedDiff(string(raw), pending.Diff)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	result, err := ws.Dispatcher.Dispatch(ctx, tool.DispatchRequest{
		SessionID: sessionID,
		ToolName:  "write",
		Args:      map[string]any{"filePath": pending.FilePath, "content": after},
		AutoMode:  true,
	})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return result
}

// Compact invokes Context Manager compaction on the session's conversation
// (spec §4.1 `compact(id, model)`).
func (m *Manager) Compact(ctx context.Context, id, model string) (before, after int, err error) {
	sess, ok := m.Get(id)
	if !ok {
		return 0, 0, fmt.Errorf("session not found: %s", id)
	}
	if model == "" {
		model = sess.Model
	}
	before = len(sess.Messages)
	sess.Messages = contextwindow.Compact(ctx, m.provider, model, sess.Messages, 4)
	sess.CompactionCount++
	after = len(sess.Messages)
	m.checkpoint(ctx, sess)
	return before, after, nil
}

// SwitchModel records a new model for a session and, if the conversation
// has grown past four messages, triggers compaction plus an observation
// note (spec §4.1 `switch-model`).
func (m *Manager) SwitchModel(ctx context.Context, id, newModel string) error {
	sess, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.Model = newModel
	if len(sess.Messages) > 4 {
		sess.Messages = contextwindow.Compact(ctx, m.provider, newModel, sess.Messages, 4)
		sess.Messages = append(sess.Messages, types.Message{
			ID: newID(), Role: types.RoleAssistant, Content: fmt.Sprintf(`{"type":"observation","content":"Switched model to %s."}`, newModel), CreatedAt: time.Now(),
		})
	}
	sess.CompactionCount = 0
	return nil
}

// Fork branches a session at its current state into a new session id,
// copying the message prefix and recording ParentID (spec.md's
// "Supplemented features": session forking, grounded on the teacher's
// Service.Fork, kept for the delegation flow's child sessions).
func (m *Manager) Fork(parentID string) (*types.Session, error) {
	parent, ok := m.Get(parentID)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", parentID)
	}
	child := &types.Session{
		ID:            newID(),
		Model:         parent.Model,
		Mode:          parent.Mode,
		WorkspaceRoot: parent.WorkspaceRoot,
		ParentID:      parent.ID,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
		Messages:      append([]types.Message(nil), parent.Messages...),
	}
	m.mu.Lock()
	m.sessions[child.ID] = child
	m.mu.Unlock()
	return child, nil
}

// checkpoint writes a checkpoint markdown file for sess (spec §3
// "Checkpoint": written at session start, every 8th step, after each
// compaction, on normal termination, on abort, and on error).
func (m *Manager) checkpoint(ctx context.Context, sess *types.Session) {
	ws := m.workspaceFor(sess.WorkspaceRoot)
	var thoughts, actions []string
	for i := len(sess.Messages) - 1; i >= 0 && len(thoughts) < 5; i-- {
		msg := sess.Messages[i]
		if msg.Role == types.RoleAssistant {
			thoughts = append(thoughts, contextwindow.SmartTruncate(msg.Content, 200))
		}
		if msg.Role == types.RoleTool {
			actions = append(actions, contextwindow.SmartTruncate(msg.Content, 150))
		}
	}
	md := contextwindow.BuildCheckpoint(contextwindow.CheckpointInput{
		SessionID:      sess.ID,
		UserRequests:   contextwindow.RenderUserRequests(sess.Messages),
		RecentThoughts: thoughts,
		ToolActions:    actions,
		PlanText:       sess.PlanText,
		PlanCompleted:  sess.PlanCompleted,
		PlanTotal:      sess.PlanTotal,
	})
	_ = ws.Store.WriteCheckpoint(sess.ID, md)
}

// saveConversation persists the conversation record only, used when the
// loop merely pauses (e.g. awaiting a diff_request decision) rather than
// truly terminating.
func (m *Manager) saveConversation(ctx context.Context, sess *types.Session, compacted bool) {
	ws := m.workspaceFor(sess.WorkspaceRoot)
	_ = ws.Store.SaveConversation(ctx, storage.BuildConversationRecord(sess, compacted))
}

// persistSummary writes the conversation record and, best-effort, an
// LLM-generated session summary on true termination (spec §4.2.4).
func (m *Manager) persistSummary(ctx context.Context, sess *types.Session, compacted bool) {
	m.saveConversation(ctx, sess, compacted)
	ws := m.workspaceFor(sess.WorkspaceRoot)

	summary, err := m.provider.CallSimple(ctx, sess.Model, []types.Message{
		{Role: types.RoleSystem, Content: "Summarize this coding session in 2-3 sentences for future recall."},
		{Role: types.RoleUser, Content: renderTranscript(sess.Messages)},
	}, contextwindow.CompletionOptions{Temperature: 0.2, MaxTokens: 256, TimeoutSecs: 30})
	if err != nil || summary == "" {
		return
	}
	_ = ws.Store.SaveMemory(ctx, &types.SessionMemoryRecord{
		SessionID: sess.ID,
		Summary:   summary,
		UpdatedAt: time.Now(),
	})
}

func renderTranscript(messages []types.Message) string {
	out := ""
	for _, m := range messages {
		out += fmt.Sprintf("%s: %s\n", m.Role, contextwindow.SmartTruncate(m.Content, 300))
	}
	return out
}
