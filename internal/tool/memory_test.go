package tool

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMemoryTool_SetAndGet(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool(dir)
	ctx := context.Background()
	toolCtx := testContext()

	setInput := json.RawMessage(`{"action": "set", "key": "favorite-tool", "value": "ripgrep"}`)
	if _, err := tool.Execute(ctx, setInput, toolCtx); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	getInput := json.RawMessage(`{"action": "get", "key": "favorite-tool"}`)
	result, err := tool.Execute(ctx, getInput, toolCtx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if result.Output != "ripgrep" {
		t.Errorf("Output = %q, want %q", result.Output, "ripgrep")
	}
}

func TestMemoryTool_GetMissingKey(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool(dir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "get", "key": "does-not-exist"}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if result.Output != "notFound" {
		t.Errorf("Output = %q, want notFound", result.Output)
	}
}

func TestMemoryTool_List(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool(dir)
	ctx := context.Background()
	toolCtx := testContext()

	for _, key := range []string{"a", "b", "c"} {
		input := json.RawMessage(`{"action": "set", "key": "` + key + `", "value": "v"}`)
		if _, err := tool.Execute(ctx, input, toolCtx); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	result, err := tool.Execute(ctx, json.RawMessage(`{"action": "list"}`), toolCtx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Metadata["count"] != 3 {
		t.Errorf("count = %v, want 3", result.Metadata["count"])
	}
}

func TestMemoryTool_SetRequiresKey(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool(dir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "set", "value": "no key"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestMemoryTool_UnknownAction(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool(dir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "wipe"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestMemoryTool_Properties(t *testing.T) {
	tool := NewMemoryTool(t.TempDir())
	if tool.ID() != "memory" {
		t.Errorf("ID = %q, want memory", tool.ID())
	}
	if tool.Description() == "" {
		t.Error("Description should not be empty")
	}
	if tool.EinoTool() == nil {
		t.Error("EinoTool should not be nil")
	}
}
