package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/event"
	"github.com/rushi32/IsoCode/internal/mcp"
	"github.com/rushi32/IsoCode/internal/permission"
	"github.com/rushi32/IsoCode/internal/provider"
	"github.com/rushi32/IsoCode/pkg/types"
)

// chatCompletionsServer returns an httptest.Server that always replies with
// the given assistant content as a chat-completions response, so Manager.Run
// can be exercised against a real provider.Adapter without a live model.
func chatCompletionsServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func managerWithServer(srv *httptest.Server) *Manager {
	cfg := types.Config{Provider: types.ProviderConfig{Provider: "openai-compatible", APIBase: srv.URL}, ContextBudget: 16384}
	prov := provider.New(cfg.Provider, 0.2, 2048)
	prov.APIBase = srv.URL
	return NewManager(cfg, prov, permission.NewChecker(), permission.NewDoomLoopDetector(), mcp.NewClient())
}

func TestRun_NormalFinalRemovesSession(t *testing.T) {
	srv := chatCompletionsServer(t, `{"type":"final","content":"all done"}`)
	m := managerWithServer(srv)
	root := t.TempDir()

	sess, _, err := m.OpenOrGet(t.Context(), "done-sess", types.ModeAgentPlus, "test-model", root, "do the thing", false)
	if err != nil {
		t.Fatalf("OpenOrGet: %v", err)
	}

	if err := m.Run(t.Context(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := m.Get("done-sess"); ok {
		t.Error("expected a normal final to remove the session from the registry")
	}
}

func TestRun_StopRequestEndsWithFinalAndRemoves(t *testing.T) {
	// A thought-only reply that never reaches "final" on its own: the stop
	// flag, set before the first step, must short-circuit the loop.
	srv := chatCompletionsServer(t, `{"type":"thought","content":"PLAN:\n1. step one"}`)
	m := managerWithServer(srv)
	root := t.TempDir()

	sess, _, err := m.OpenOrGet(t.Context(), "stop-sess", types.ModeAgent, "test-model", root, "do the thing", false)
	if err != nil {
		t.Fatalf("OpenOrGet: %v", err)
	}
	sess.RequestStop()

	var finalCount int
	unsub := event.Subscribe(event.Final, func(e event.Event) {
		if fd, ok := e.Data.(event.FinalData); ok && fd.SessionID == sess.ID {
			finalCount++
		}
	})
	defer unsub()

	if err := m.Run(t.Context(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finalCount != 1 {
		t.Errorf("expected exactly one final event on stop, got %d", finalCount)
	}
	if _, ok := m.Get("stop-sess"); ok {
		t.Error("expected the session to be removed after a stop request")
	}
}

func TestRun_NoActionCapTerminatesWithFinalAndRemoves(t *testing.T) {
	srv := chatCompletionsServer(t, `{"type":"thought","content":"still thinking"}`)
	m := managerWithServer(srv)
	root := t.TempDir()

	sess, _, err := m.OpenOrGet(t.Context(), "nudge-sess", types.ModeAgent, "test-model", root, "do the thing", false)
	if err != nil {
		t.Fatalf("OpenOrGet: %v", err)
	}

	var finalCount int
	unsub := event.Subscribe(event.Final, func(e event.Event) {
		if fd, ok := e.Data.(event.FinalData); ok && fd.SessionID == sess.ID {
			finalCount++
		}
	})
	defer unsub()

	// Every reply is a no-action thought, so the loop runs until the
	// consecutive-no-action cap (10) ends the run; by then the two-thought
	// nudge must already have fired at least once. Per spec §7 the engine
	// never raises out of the loop uncaught, so Run still returns an error
	// here for the caller's own logging, but the session-visible outcome
	// must be a single final event plus registry removal.
	if err := m.Run(t.Context(), sess); err == nil {
		t.Error("expected Run to report the no-action cap as an error to its caller")
	}
	if finalCount != 1 {
		t.Errorf("expected exactly one final event on no-action-cap termination, got %d", finalCount)
	}
	if _, ok := m.Get("nudge-sess"); ok {
		t.Error("expected the session to be removed after no-action-cap termination")
	}

	var nudged bool
	for _, msg := range sess.Messages {
		if msg.Role == types.RoleUser && strings.Contains(msg.Content, "Emit an action directive") {
			nudged = true
		}
	}
	if !nudged {
		t.Error("expected a nudge message after two consecutive no-action thoughts")
	}
}

func TestCallLLMWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "ok"}}},
		})
	}))
	t.Cleanup(srv.Close)
	m := managerWithServer(srv)
	agent := NewAgent(types.ModeAgent, DefaultMaxSteps)
	sess := &types.Session{ID: "retry-sess", Model: "test-model"}

	var thoughtEvents int
	unsub := event.Subscribe(event.Thought, func(e event.Event) {
		if td, ok := e.Data.(event.ThoughtData); ok && td.SessionID == sess.ID {
			thoughtEvents++
		}
	})
	defer unsub()

	raw, err := callLLMWithRetry(t.Context(), m, sess, agent, nil)
	if err != nil {
		t.Fatalf("callLLMWithRetry: %v", err)
	}
	if raw != "ok" {
		t.Errorf("expected the eventual success content, got %q", raw)
	}
	if thoughtEvents != 1 {
		t.Errorf("expected one retry-announcement thought event, got %d", thoughtEvents)
	}
}

func TestCallLLMWithRetry_NotFoundSkipsRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "model not found"}})
	}))
	t.Cleanup(srv.Close)
	m := managerWithServer(srv)
	agent := NewAgent(types.ModeAgent, DefaultMaxSteps)
	sess := &types.Session{ID: "notfound-sess", Model: "missing-model"}

	if _, err := callLLMWithRetry(t.Context(), m, sess, agent, nil); err == nil {
		t.Fatal("expected a not-found error")
	}
	if calls != 1 {
		t.Errorf("expected no retries on a not-found error, got %d calls", calls)
	}
}
