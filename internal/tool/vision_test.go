package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rushi32/IsoCode/internal/provider"
)

type fakeVisionCaller struct {
	lastModel  string
	lastPrompt string
	content    string
	err        error
}

func (f *fakeVisionCaller) CallVision(ctx context.Context, model, prompt, imageBase64, mimeType string, opts provider.Options) (*provider.CallResult, error) {
	f.lastModel = model
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CallResult{Content: f.content}, nil
}

func writeTestPNG(t *testing.T, dir string) string {
	t.Helper()
	// Minimal 1x1 PNG signature is not required by the tool; it only checks
	// the extension and reads raw bytes.
	path := filepath.Join(dir, "diagram.png")
	if err := os.WriteFile(path, []byte("fake-png-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVisionTool_NoModelConfigured(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir)

	tool := NewVisionTool(dir, nil, "")
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"filePath": "` + path + `"}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(result.Attachments))
	}
}

func TestVisionTool_CallsConfiguredModel(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir)

	caller := &fakeVisionCaller{content: "A hand-drawn architecture diagram."}
	tool := NewVisionTool(dir, caller, "vision-model")
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"filePath": "` + path + `", "prompt": "What is this?"}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output != "A hand-drawn architecture diagram." {
		t.Errorf("Output = %q", result.Output)
	}
	if caller.lastModel != "vision-model" {
		t.Errorf("lastModel = %q, want vision-model", caller.lastModel)
	}
	if caller.lastPrompt != "What is this?" {
		t.Errorf("lastPrompt = %q, want 'What is this?'", caller.lastPrompt)
	}
}

func TestVisionTool_RejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewVisionTool(dir, nil, "")
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"filePath": "` + path + `"}`)
	if _, err := tool.Execute(ctx, input, toolCtx); err == nil {
		t.Error("expected error for non-image file")
	}
}

func TestVisionTool_Properties(t *testing.T) {
	tool := NewVisionTool(t.TempDir(), nil, "")
	if tool.ID() != "vision" {
		t.Errorf("ID = %q, want vision", tool.ID())
	}
	if tool.EinoTool() == nil {
		t.Error("EinoTool should not be nil")
	}
}
