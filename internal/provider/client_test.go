package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rushi32/IsoCode/pkg/types"
)

func TestExtractChatContentPrefersMessageContent(t *testing.T) {
	resp := &chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "hello"}}}}
	got := extractChatContent(resp, []byte(`{}`))
	if got != "hello" {
		t.Errorf("extractChatContent() = %q, want %q", got, "hello")
	}
}

func TestExtractChatContentJoinsParts(t *testing.T) {
	parts := []any{
		map[string]any{"type": "text", "text": "foo"},
		map[string]any{"type": "text", "text": "bar"},
	}
	resp := &chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: parts}}}}
	got := extractChatContent(resp, []byte(`{}`))
	if got != "foobar" {
		t.Errorf("extractChatContent() = %q, want %q", got, "foobar")
	}
}

func TestExtractChatContentFallsBackToTopLevelOutput(t *testing.T) {
	resp := &chatResponse{Output: "top level output"}
	got := extractChatContent(resp, []byte(`{}`))
	if got != "top level output" {
		t.Errorf("extractChatContent() = %q, want %q", got, "top level output")
	}
}

func TestExtractChatContentLastDitchScansRawBody(t *testing.T) {
	resp := &chatResponse{}
	raw := []byte(`{"unexpected_field": "salvaged content"}`)
	got := extractChatContent(resp, raw)
	if got != "salvaged content" {
		t.Errorf("extractChatContent() = %q, want %q", got, "salvaged content")
	}
}

func TestExtractNativeContentPrefersMessageContent(t *testing.T) {
	resp := &nativeResponse{}
	resp.Message.Content = "native reply"
	got := extractNativeContent(resp, []byte(`{}`))
	if got != "native reply" {
		t.Errorf("extractNativeContent() = %q, want %q", got, "native reply")
	}
}

func TestAdapterCallChatCompletionsHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	a := New(types.ProviderConfig{Provider: "openai", APIBase: server.URL}, 0.2, 512)
	result, err := a.Call(context.Background(), "gpt-test", []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Content != "ok" {
		t.Errorf("Call() content = %q, want %q", result.Content, "ok")
	}
}

func TestAdapterCallEscalatesOn400ThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"response_format not supported"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "recovered"}}}})
	}))
	defer server.Close()

	a := New(types.ProviderConfig{Provider: "openai", APIBase: server.URL}, 0.2, 512)
	result, err := a.Call(context.Background(), "gpt-test", []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{ExpectJSON: true})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Content != "recovered" {
		t.Errorf("Call() content = %q, want %q", result.Content, "recovered")
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts (escalation), got %d", attempts)
	}
}

func TestAdapterCallReturnsNotFoundGuidanceImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer server.Close()

	a := New(types.ProviderConfig{Provider: "openai", APIBase: server.URL}, 0.2, 512)
	_, err := a.Call(context.Background(), "missing-model", []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})
	if err == nil {
		t.Fatal("Call() expected error for missing model, got nil")
	}
}
