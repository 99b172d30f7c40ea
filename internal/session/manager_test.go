package session

import (
	"context"
	"testing"

	"github.com/rushi32/IsoCode/internal/mcp"
	"github.com/rushi32/IsoCode/internal/permission"
	"github.com/rushi32/IsoCode/internal/provider"
	"github.com/rushi32/IsoCode/pkg/types"
)

func newTestManager() *Manager {
	cfg := types.Config{Provider: types.ProviderConfig{Provider: "local"}}
	prov := provider.New(cfg.Provider, 0.2, 2048)
	return NewManager(cfg, prov, permission.NewChecker(), permission.NewDoomLoopDetector(), mcp.NewClient())
}

func TestOpenOrGet_CreatesThenReuses(t *testing.T) {
	m := newTestManager()
	root := t.TempDir()

	sess, created, err := m.OpenOrGet(context.Background(), "sess-1", types.ModeAgent, "test-model", root, "hello", false)
	if err != nil {
		t.Fatalf("OpenOrGet failed: %v", err)
	}
	if !created {
		t.Error("expected created=true on first call")
	}
	if sess.ID != "sess-1" || sess.WorkspaceRoot != root {
		t.Errorf("unexpected session fields: %+v", sess)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(sess.Messages))
	}

	again, created2, err := m.OpenOrGet(context.Background(), "sess-1", types.ModeAgent, "test-model", root, "follow up", true)
	if err != nil {
		t.Fatalf("OpenOrGet (reuse) failed: %v", err)
	}
	if created2 {
		t.Error("expected created=false on second call")
	}
	if again != sess {
		t.Error("expected the same session pointer to be returned")
	}
	if len(again.Messages) != 3 {
		t.Errorf("expected the follow-up message appended, got %d messages", len(again.Messages))
	}
}

func TestManager_ActiveAndRemove(t *testing.T) {
	m := newTestManager()
	root := t.TempDir()

	if _, _, err := m.OpenOrGet(context.Background(), "a", types.ModeAgent, "m", root, "hi", false); err != nil {
		t.Fatalf("OpenOrGet failed: %v", err)
	}
	if _, _, err := m.OpenOrGet(context.Background(), "b", types.ModeAgent, "m", root, "hi", false); err != nil {
		t.Fatalf("OpenOrGet failed: %v", err)
	}

	active := m.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(active))
	}

	m.Remove("a")
	if _, ok := m.Get("a"); ok {
		t.Error("expected session 'a' to be removed")
	}
	if len(m.Active()) != 1 {
		t.Errorf("expected 1 active session after removal, got %d", len(m.Active()))
	}
}

func TestManager_StoreAndIndexAreWorkspaceScoped(t *testing.T) {
	m := newTestManager()
	root := t.TempDir()

	store1 := m.Store(root)
	store2 := m.Store(root)
	if store1 != store2 {
		t.Error("expected Store to reuse the cached Workspace bundle for the same root")
	}

	idx1 := m.Index(root)
	idx2 := m.Index(root)
	if idx1 != idx2 {
		t.Error("expected Index to reuse the cached Workspace bundle for the same root")
	}

	otherRoot := t.TempDir()
	if m.Store(otherRoot) == store1 {
		t.Error("expected a distinct Store for a distinct workspace root")
	}
}

func TestManager_StopUnknownSession(t *testing.T) {
	m := newTestManager()
	if err := m.Stop("does-not-exist"); err == nil {
		t.Error("expected an error stopping an unknown session")
	}
}
