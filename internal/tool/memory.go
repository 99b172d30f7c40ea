package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/rushi32/IsoCode/internal/storage"
)

const memoryDescription = `Reads and writes the workspace's persistent agent memory, a key-value store that
outlives any single session (<workspace>/.isocode/agent-memory.json).

Usage:
- action "set" requires key and value; overwrites any existing value for key
- action "get" requires key; returns the stored value or notFound
- action "list" returns all stored keys
- Values are capped at 8000 characters; the store is capped at 200 keys, oldest evicted on overflow`

// MemoryTool implements the Tool Dispatcher's memory category: a simple
// tool-accessible key-value store backed by the workspace's agent-memory.json.
type MemoryTool struct {
	store *storage.WorkspaceStore
}

// MemoryInput represents the input for the memory tool.
type MemoryInput struct {
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

// NewMemoryTool creates a new memory tool rooted at workDir's .isocode directory.
func NewMemoryTool(workDir string) *MemoryTool {
	return &MemoryTool{store: storage.NewWorkspaceStore(workDir)}
}

func (t *MemoryTool) ID() string          { return "memory" }
func (t *MemoryTool) Description() string { return memoryDescription }

func (t *MemoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["get", "set", "list"],
				"description": "The memory operation to perform"
			},
			"key": {
				"type": "string",
				"description": "The memory key (required for get/set)"
			},
			"value": {
				"type": "string",
				"description": "The value to store (required for set)"
			}
		},
		"required": ["action"]
	}`)
}

func (t *MemoryTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params MemoryInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	switch strings.ToLower(params.Action) {
	case "set":
		if params.Key == "" {
			return nil, fmt.Errorf("key is required for action=set")
		}
		if err := t.store.SetAgentMemoryKey(ctx, params.Key, params.Value); err != nil {
			return nil, fmt.Errorf("failed to store memory key: %w", err)
		}
		return &Result{
			Title:  fmt.Sprintf("Remembered %s", params.Key),
			Output: fmt.Sprintf("Stored %d chars under key %q", len(params.Value), params.Key),
		}, nil

	case "get":
		if params.Key == "" {
			return nil, fmt.Errorf("key is required for action=get")
		}
		value, ok, err := t.store.GetAgentMemoryKey(ctx, params.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read memory key: %w", err)
		}
		if !ok {
			return &Result{
				Title:  fmt.Sprintf("Memory %s", params.Key),
				Output: "notFound",
			}, nil
		}
		return &Result{
			Title:  fmt.Sprintf("Memory %s", params.Key),
			Output: value,
		}, nil

	case "list":
		entries, err := t.store.LoadAgentMemory(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load agent memory: %w", err)
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return &Result{
			Title:  "Memory keys",
			Output: strings.Join(keys, "\n"),
			Metadata: map[string]any{
				"count": len(keys),
				"keys":  keys,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown memory action %q; expected get, set, or list", params.Action)
	}
}

func (t *MemoryTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
