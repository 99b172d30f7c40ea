package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rushi32/IsoCode/pkg/types"
)

// WorkspaceStore is the per-workspace facade over Storage implementing the
// persistence records described in the data model: conversations, session
// memory, checkpoints, project context and agent memory, all rooted at
// <workspaceRoot>/.isocode/.
type WorkspaceStore struct {
	root  string
	files *Storage
}

// NewWorkspaceStore opens (without requiring it to exist yet) the .isocode
// directory under workspaceRoot.
func NewWorkspaceStore(workspaceRoot string) *WorkspaceStore {
	return &WorkspaceStore{
		root:  filepath.Join(workspaceRoot, ".isocode"),
		files: New(filepath.Join(workspaceRoot, ".isocode")),
	}
}

var sessionIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SanitizeSessionID maps a session id to a filesystem-safe token. Idempotent:
// sanitizing an already-sanitized id returns it unchanged.
func SanitizeSessionID(id string) string {
	return sessionIDSanitizer.ReplaceAllString(id, "_")
}

// --- Conversations -------------------------------------------------------

// SaveConversation writes a session's conversation record as given; the
// caps (<=100 messages, <=4000 chars each) are applied by
// BuildConversationRecord.
func (w *WorkspaceStore) SaveConversation(ctx context.Context, rec *types.ConversationRecord) error {
	return w.files.Put(ctx, []string{"conversations", SanitizeSessionID(rec.SessionID)}, rec)
}

// LoadConversation reads a persisted conversation record.
func (w *WorkspaceStore) LoadConversation(ctx context.Context, sessionID string) (*types.ConversationRecord, error) {
	var rec types.ConversationRecord
	if err := w.files.Get(ctx, []string{"conversations", SanitizeSessionID(sessionID)}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteConversation removes a persisted conversation.
func (w *WorkspaceStore) DeleteConversation(ctx context.Context, sessionID string) error {
	return w.files.Delete(ctx, []string{"conversations", SanitizeSessionID(sessionID)})
}

// ListConversations lists all persisted conversation session ids.
func (w *WorkspaceStore) ListConversations(ctx context.Context) ([]string, error) {
	return w.files.List(ctx, []string{"conversations"})
}

// BuildConversationRecord truncates a live session's messages into the
// on-disk shape: last N<=100 messages, each content capped to 4000 chars.
func BuildConversationRecord(sess *types.Session, compacted bool) *types.ConversationRecord {
	msgs := sess.Messages
	if len(msgs) > types.MaxPersistedMessages {
		msgs = msgs[len(msgs)-types.MaxPersistedMessages:]
	}
	persisted := make([]types.PersistedMessage, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if len(content) > types.MaxPersistedMessageChars {
			content = content[:types.MaxPersistedMessageChars]
		}
		persisted = append(persisted, types.PersistedMessage{
			ID:        m.ID,
			Role:      m.Role,
			Content:   content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return &types.ConversationRecord{
		SessionID:    sess.ID,
		UpdatedAt:    time.Now().Format(time.RFC3339),
		MessageCount: len(sess.Messages),
		Metadata: types.ConversationMetadata{
			Model:     sess.Model,
			Compacted: compacted,
		},
		Messages: persisted,
	}
}

// --- Session memory -------------------------------------------------------

// SaveMemory writes the LLM-generated session summary.
func (w *WorkspaceStore) SaveMemory(ctx context.Context, rec *types.SessionMemoryRecord) error {
	return w.files.Put(ctx, []string{"memory", SanitizeSessionID(rec.SessionID)}, rec)
}

// LoadMemory reads a session's summary, if any.
func (w *WorkspaceStore) LoadMemory(ctx context.Context, sessionID string) (*types.SessionMemoryRecord, error) {
	var rec types.SessionMemoryRecord
	if err := w.files.Get(ctx, []string{"memory", SanitizeSessionID(sessionID)}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentMemories returns up to n session summaries ordered most-recently
// updated first, for the cross-session memory primer.
func (w *WorkspaceStore) RecentMemories(ctx context.Context, n int) ([]*types.SessionMemoryRecord, error) {
	ids, err := w.files.List(ctx, []string{"memory"})
	if err != nil {
		return nil, err
	}
	var recs []*types.SessionMemoryRecord
	for _, id := range ids {
		var rec types.SessionMemoryRecord
		if err := w.files.Get(ctx, []string{"memory", id}, &rec); err == nil {
			recs = append(recs, &rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	if len(recs) > n {
		recs = recs[:n]
	}
	return recs, nil
}

// --- Checkpoints (markdown, not JSON) -------------------------------------

// WriteCheckpoint writes a human-readable markdown snapshot of session state.
func (w *WorkspaceStore) WriteCheckpoint(sessionID, markdown string) error {
	dir := filepath.Join(w.root, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, SanitizeSessionID(sessionID)+".md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(markdown), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadCheckpoint reads a previously written checkpoint, capped to maxChars
// (the caller applies the 1,500-char cap when priming a resumed session).
func (w *WorkspaceStore) ReadCheckpoint(sessionID string, maxChars int) (string, error) {
	path := filepath.Join(w.root, "checkpoints", SanitizeSessionID(sessionID)+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := string(data)
	if maxChars > 0 && len(s) > maxChars {
		s = s[:maxChars]
	}
	return s, nil
}

// --- Project context -------------------------------------------------------

type projectContextFile struct {
	Entries map[string]types.ProjectContextEntry `json:"entries"`
}

// LoadProjectContext reads the workspace's project-context key-value store.
func (w *WorkspaceStore) LoadProjectContext(ctx context.Context) (map[string]types.ProjectContextEntry, error) {
	var f projectContextFile
	if err := w.files.Get(ctx, []string{"project-context"}, &f); err != nil {
		if err == ErrNotFound {
			return map[string]types.ProjectContextEntry{}, nil
		}
		return nil, err
	}
	if f.Entries == nil {
		f.Entries = map[string]types.ProjectContextEntry{}
	}
	return f.Entries, nil
}

// SetProjectContextKey upserts a key, evicting the oldest entry when the
// 100-key cap would otherwise be exceeded.
func (w *WorkspaceStore) SetProjectContextKey(ctx context.Context, key, value string) error {
	entries, err := w.LoadProjectContext(ctx)
	if err != nil {
		return err
	}
	if _, exists := entries[key]; !exists && len(entries) >= types.MaxProjectContextKeys {
		evictOldest(entries, func(e types.ProjectContextEntry) time.Time { return e.UpdatedAt })
	}
	entries[key] = types.ProjectContextEntry{Value: value, UpdatedAt: time.Now()}
	return w.files.Put(ctx, []string{"project-context"}, projectContextFile{Entries: entries})
}

// --- Agent memory (tool-accessible key-value) ------------------------------

type agentMemoryFile struct {
	Entries map[string]types.AgentMemoryEntry `json:"entries"`
}

// LoadAgentMemory reads the workspace's agent-memory key-value store.
func (w *WorkspaceStore) LoadAgentMemory(ctx context.Context) (map[string]types.AgentMemoryEntry, error) {
	var f agentMemoryFile
	if err := w.files.Get(ctx, []string{"agent-memory"}, &f); err != nil {
		if err == ErrNotFound {
			return map[string]types.AgentMemoryEntry{}, nil
		}
		return nil, err
	}
	if f.Entries == nil {
		f.Entries = map[string]types.AgentMemoryEntry{}
	}
	return f.Entries, nil
}

// SetAgentMemoryKey upserts a key, truncating oversized values and evicting
// the oldest entry when the 200-key cap would otherwise be exceeded.
func (w *WorkspaceStore) SetAgentMemoryKey(ctx context.Context, key, value string) error {
	if len(value) > types.MaxAgentMemoryValueChars {
		value = value[:types.MaxAgentMemoryValueChars]
	}
	entries, err := w.LoadAgentMemory(ctx)
	if err != nil {
		return err
	}
	if _, exists := entries[key]; !exists && len(entries) >= types.MaxAgentMemoryKeys {
		evictOldest(entries, func(e types.AgentMemoryEntry) time.Time { return e.UpdatedAt })
	}
	entries[key] = types.AgentMemoryEntry{Value: value, UpdatedAt: time.Now()}
	return w.files.Put(ctx, []string{"agent-memory"}, agentMemoryFile{Entries: entries})
}

// GetAgentMemoryKey reads a single agent-memory value.
func (w *WorkspaceStore) GetAgentMemoryKey(ctx context.Context, key string) (string, bool, error) {
	entries, err := w.LoadAgentMemory(ctx)
	if err != nil {
		return "", false, err
	}
	e, ok := entries[key]
	return e.Value, ok, nil
}

func evictOldest[V any](m map[string]V, updatedAt func(V) time.Time) {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, v := range m {
		t := updatedAt(v)
		if first || t.Before(oldestTime) {
			oldestKey, oldestTime, first = k, t, false
		}
	}
	if !first {
		delete(m, oldestKey)
	}
}
