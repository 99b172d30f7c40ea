package tool

import (
	"context"
	"encoding/json"
	"testing"
)

func TestBrowserTool_Properties(t *testing.T) {
	tool := NewBrowserTool(t.TempDir())
	if tool.ID() != "browser" {
		t.Errorf("ID = %q, want browser", tool.ID())
	}
	if tool.EinoTool() == nil {
		t.Error("EinoTool should not be nil")
	}
}

func TestBrowserTool_OpenRequiresURL(t *testing.T) {
	tool := NewBrowserTool(t.TempDir())
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "open"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err == nil {
		t.Error("expected error when url is missing")
	}
}

func TestBrowserTool_ClickRequiresOpenPage(t *testing.T) {
	sharedBrowser.mu.Lock()
	sharedBrowser.page = nil
	sharedBrowser.mu.Unlock()

	tool := NewBrowserTool(t.TempDir())
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "click", "selector": "#submit"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err == nil {
		t.Error("expected error when no page has been opened")
	}
}

func TestBrowserTool_ScreenshotRequiresOpenPage(t *testing.T) {
	sharedBrowser.mu.Lock()
	sharedBrowser.page = nil
	sharedBrowser.mu.Unlock()

	tool := NewBrowserTool(t.TempDir())
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "screenshot"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err == nil {
		t.Error("expected error when no page has been opened")
	}
}

func TestBrowserTool_UnknownAction(t *testing.T) {
	tool := NewBrowserTool(t.TempDir())
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "teleport"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestBrowserTool_CloseIsSafeWithoutOpen(t *testing.T) {
	sharedBrowser.mu.Lock()
	sharedBrowser.browser = nil
	sharedBrowser.page = nil
	sharedBrowser.mu.Unlock()

	tool := NewBrowserTool(t.TempDir())
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"action": "close"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err != nil {
		t.Errorf("close should be a no-op when nothing is open: %v", err)
	}
}
