package types

import "time"

// ConversationRecord is the on-disk shape of a session's conversation under
// <workspace>/.isocode/conversations/<sanitised-session-id>.json.
type ConversationRecord struct {
	SessionID   string                 `json:"sessionID"`
	UpdatedAt   string                 `json:"updatedAt"` // ISO-8601
	MessageCount int                   `json:"messageCount"`
	Metadata    ConversationMetadata   `json:"metadata"`
	Messages    []PersistedMessage     `json:"messages"`
}

// ConversationMetadata captures small facts about the conversation that
// don't belong on every message.
type ConversationMetadata struct {
	Model     string `json:"model,omitempty"`
	Compacted bool   `json:"compacted"`
}

// PersistedMessage is a conversation message truncated for disk storage.
type PersistedMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// MaxPersistedMessages is the cap on messages retained in a conversation record.
const MaxPersistedMessages = 100

// MaxPersistedMessageChars is the per-message truncation cap for persisted content.
const MaxPersistedMessageChars = 4000

// SessionMemoryRecord is the LLM-generated session summary written to
// <workspace>/.isocode/memory/<session>.json.
type SessionMemoryRecord struct {
	SessionID string    `json:"sessionID"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectContextEntry is one key's value in .isocode/project-context.json.
type ProjectContextEntry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MaxProjectContextKeys caps the project-context map; oldest evicted past this.
const MaxProjectContextKeys = 100

// AgentMemoryEntry is one key's value in the tool-accessible agent-memory store.
type AgentMemoryEntry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MaxAgentMemoryKeys caps the agent-memory map; oldest evicted past this.
const MaxAgentMemoryKeys = 200

// MaxAgentMemoryValueChars caps a single agent-memory value.
const MaxAgentMemoryValueChars = 8000

// FileIndexEntry describes one file discovered while building a FileIndex.
type FileIndexEntry struct {
	RelativePath string `json:"relativePath"`
	Extension    string `json:"extension"`
	Size         int64  `json:"size"`
	Dir          string `json:"dir"`
}

// FileIndex is the on-demand, TTL-cached map of a workspace's files.
type FileIndex struct {
	Files       []FileIndexEntry  `json:"files"`
	Directories map[string]bool   `json:"directories"`
	KeyFiles    map[string]string `json:"keyFiles"` // first 2000 chars of well-known files
	TotalCount  int               `json:"totalCount"`
	BuiltAt     time.Time         `json:"builtAt"`
}

// FileIndexTTL is how long a built FileIndex stays valid before rebuilding.
const FileIndexTTL = 60 * time.Second
