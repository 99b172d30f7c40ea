package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// CallVision sends a single-image multimodal prompt, dispatching to either
// the native multimodal shape (images: [base64]) or the chat-completions
// {type:image_url} content-part format (spec §4.5).
func (a *Adapter) CallVision(ctx context.Context, model, prompt, imageBase64, mimeType string, opts Options) (*CallResult, error) {
	opts = a.resolveOptions(opts)
	if a.isLocal() {
		return a.callVisionNative(ctx, model, prompt, imageBase64, opts)
	}
	return a.callVisionChatCompletions(ctx, model, prompt, imageBase64, mimeType, opts)
}

func (a *Adapter) callVisionNative(ctx context.Context, model, prompt, imageBase64 string, opts Options) (*CallResult, error) {
	req := nativeRequest{
		Model: model,
		Messages: []nativeMessage{
			{Role: "user", Content: prompt, Images: []string{imageBase64}},
		},
		Stream: false,
		Options: map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: marshal vision request: %w", err)
	}

	raw, err := a.postWithRetry(ctx, a.APIBase+"/api/chat", body, opts.TimeoutSecs)
	if err != nil {
		return nil, err
	}

	var resp nativeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("llm adapter: decode vision response: %w", err)
	}
	return &CallResult{Content: extractNativeContent(&resp, raw)}, nil
}

func (a *Adapter) callVisionChatCompletions(ctx context.Context, model, prompt, imageBase64, mimeType string, opts Options) (*CallResult, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, imageBase64)
	content := []map[string]any{
		{"type": "text", "text": prompt},
		{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
	}

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: content},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: marshal vision request: %w", err)
	}

	raw, err := a.postWithRetry(ctx, a.APIBase+"/chat/completions", body, opts.TimeoutSecs)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("llm adapter: decode vision response: %w", err)
	}
	return &CallResult{Content: extractChatContent(&resp, raw)}, nil
}
