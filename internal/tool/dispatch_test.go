package tool

import (
	"context"
	"testing"

	"github.com/rushi32/IsoCode/internal/permission"
	"github.com/rushi32/IsoCode/internal/storage"
	"github.com/rushi32/IsoCode/pkg/types"
)

func newTestDispatcher(t *testing.T, perm types.PermissionConfig) (*Dispatcher, *Registry) {
	t.Helper()
	workDir := t.TempDir()
	registry := NewRegistry(workDir, storage.New(workDir))
	registry.Register(newMockTool("read", "reads things"))
	checker := permission.NewChecker()
	doomLoop := permission.NewDoomLoopDetector()
	return NewDispatcher(registry, checker, doomLoop, perm, workDir), registry
}

func TestDispatchUnknownToolErrors(t *testing.T) {
	d, _ := newTestDispatcher(t, types.PermissionConfig{})
	_, err := d.Dispatch(context.Background(), DispatchRequest{ToolName: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestDispatchAllowedToolSucceeds(t *testing.T) {
	d, _ := newTestDispatcher(t, types.PermissionConfig{})
	out, err := d.Dispatch(context.Background(), DispatchRequest{
		SessionID: "s1",
		ToolName:  "read",
		Args:      map[string]any{},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out == "" {
		t.Error("expected non-empty observation")
	}
}

func TestDispatchDeniesEditWhenConfiguredDeny(t *testing.T) {
	workDir := t.TempDir()
	registry := NewRegistry(workDir, storage.New(workDir))
	registry.Register(NewWriteTool(workDir))
	checker := permission.NewChecker()
	d := NewDispatcher(registry, checker, permission.NewDoomLoopDetector(), types.PermissionConfig{Edit: types.ActionNever}, workDir)

	_, err := d.Dispatch(context.Background(), DispatchRequest{
		SessionID: "s1",
		ToolName:  "write",
		Args:      map[string]any{"filePath": workDir + "/out.txt", "content": "hi"},
	})
	if err == nil {
		t.Fatal("expected permission denial error")
	}
	if !permission.IsRejectedError(err) {
		t.Errorf("expected a RejectedError, got %T: %v", err, err)
	}
}

func TestDispatchConfinesPathsOutsideWorkspace(t *testing.T) {
	workDir := t.TempDir()
	registry := NewRegistry(workDir, storage.New(workDir))
	registry.Register(NewWriteTool(workDir))
	checker := permission.NewChecker()
	d := NewDispatcher(registry, checker, permission.NewDoomLoopDetector(), types.PermissionConfig{
		Edit:        types.ActionAlways,
		ExternalDir: types.ActionNever,
	}, workDir)

	_, err := d.Dispatch(context.Background(), DispatchRequest{
		SessionID: "s1",
		ToolName:  "write",
		Args:      map[string]any{"filePath": "/etc/outside.txt", "content": "hi"},
	})
	if err == nil {
		t.Fatal("expected external-directory denial error")
	}
}

func TestDispatchWrapsOutputAsContentObservation(t *testing.T) {
	workDir := t.TempDir()
	registry := NewRegistry(workDir, storage.New(workDir))
	registry.Register(&mockTool{id: "big", params: []byte(`{}`)})
	d := NewDispatcher(registry, permission.NewChecker(), permission.NewDoomLoopDetector(), types.PermissionConfig{}, workDir)

	out, err := d.Dispatch(context.Background(), DispatchRequest{SessionID: "s1", ToolName: "big", Args: map[string]any{}})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != `{"content":"mock result"}` {
		t.Errorf("Dispatch() output = %q", out)
	}
}
