package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/rushi32/IsoCode/internal/provider"
)

const visionDescription = `Loads an image from the workspace and, when a model is configured, asks it to
describe or answer a question about the image.

Usage:
- filePath is required and must point at a jpg/jpeg/png/gif/bmp/webp file
- prompt is optional free text asked of the vision model (default: "Describe this image")
- model is optional; when omitted, the tool only returns the encoded image without
  calling a model`

// VisionCaller is the subset of the LLM Adapter the vision tool needs.
// *provider.Adapter satisfies this directly.
type VisionCaller interface {
	CallVision(ctx context.Context, model, prompt, imageBase64, mimeType string, opts provider.Options) (*provider.CallResult, error)
}

// VisionTool implements the vision category of the Tool Dispatcher: image
// loading plus an optional model call (spec §4.4).
type VisionTool struct {
	workDir string
	caller  VisionCaller
	model   string
}

// VisionInput represents the input for the vision tool.
type VisionInput struct {
	FilePath string `json:"filePath"`
	Prompt   string `json:"prompt,omitempty"`
	Model    string `json:"model,omitempty"`
}

// NewVisionTool creates a new vision tool. caller/defaultModel may be nil/empty
// when no vision-capable model is configured; the tool then just loads the image.
func NewVisionTool(workDir string, caller VisionCaller, defaultModel string) *VisionTool {
	return &VisionTool{workDir: workDir, caller: caller, model: defaultModel}
}

func (t *VisionTool) ID() string          { return "vision" }
func (t *VisionTool) Description() string { return visionDescription }

func (t *VisionTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {"type": "string", "description": "Path to the image file"},
			"prompt": {"type": "string", "description": "Question to ask about the image"},
			"model": {"type": "string", "description": "Override the configured vision model"}
		},
		"required": ["filePath"]
	}`)
}

func (t *VisionTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params VisionInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if !isImageFile(params.FilePath) {
		return nil, fmt.Errorf("%s does not look like a supported image file", params.FilePath)
	}

	data, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := detectMediaType(params.FilePath)
	encoded := base64.StdEncoding.EncodeToString(data)

	prompt := params.Prompt
	if prompt == "" {
		prompt = "Describe this image"
	}

	model := params.Model
	if model == "" {
		model = t.model
	}

	if t.caller == nil || model == "" {
		return &Result{
			Title:  fmt.Sprintf("Loaded %s", filepath.Base(params.FilePath)),
			Output: "(image loaded; no vision model configured, returning encoded image only)",
			Attachments: []Attachment{
				{
					Filename:  filepath.Base(params.FilePath),
					MediaType: mimeType,
					URL:       fmt.Sprintf("data:%s;base64,%s", mimeType, encoded),
				},
			},
		}, nil
	}

	result, err := t.caller.CallVision(ctx, model, prompt, encoded, mimeType, provider.Options{TimeoutSecs: 120})
	if err != nil {
		return nil, fmt.Errorf("vision model call failed: %w", err)
	}

	return &Result{
		Title:  fmt.Sprintf("Vision: %s", filepath.Base(params.FilePath)),
		Output: strings.TrimSpace(result.Content),
		Metadata: map[string]any{
			"file":  params.FilePath,
			"model": model,
		},
	}, nil
}

func (t *VisionTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
