package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rushi32/IsoCode/pkg/types"
)

// StreamDelta is one incremental chunk yielded by Stream.
type StreamDelta struct {
	Text string
	Done bool
	Err  error
}

// Stream performs a streaming completion, yielding string deltas on the
// returned channel until the stream terminates (spec §4.5: SSE `data:`
// frames for chat-completions, line-delimited JSON for the native
// endpoint, both terminated by a done/finish marker).
func (a *Adapter) Stream(ctx context.Context, model string, messages []types.Message, opts Options) (<-chan StreamDelta, error) {
	opts = a.resolveOptions(opts)
	if a.isLocal() {
		return a.streamNative(ctx, model, messages, opts)
	}
	return a.streamChatCompletions(ctx, model, messages, opts)
}

func (a *Adapter) streamChatCompletions(ctx context.Context, model string, messages []types.Message, opts Options) (<-chan StreamDelta, error) {
	req := chatRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
		Tools:       toChatTools(opts.Tools),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.APIBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm adapter: build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key, val := a.authHeader(); key != "" {
		httpReq.Header.Set(key, val)
	}

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &httpStatusError{Status: resp.StatusCode}
	}

	ch := make(chan StreamDelta, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 256*1024), 256*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- StreamDelta{Err: ctx.Err()}
				return
			default:
			}

			line := scanner.Text()
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				ch <- StreamDelta{Done: true}
				return
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				ch <- StreamDelta{Err: fmt.Errorf("llm adapter: parse SSE chunk: %w", err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if text, ok := choice.Delta.Content.(string); ok && text != "" {
				ch <- StreamDelta{Text: text}
			}
			if choice.FinishReason == "stop" {
				ch <- StreamDelta{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamDelta{Err: fmt.Errorf("llm adapter: read SSE stream: %w", err)}
		}
	}()

	return ch, nil
}

func (a *Adapter) streamNative(ctx context.Context, model string, messages []types.Message, opts Options) (<-chan StreamDelta, error) {
	req := nativeRequest{
		Model:    model,
		Messages: toNativeMessages(messages),
		Stream:   true,
		Options: map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: marshal native stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.APIBase+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm adapter: build native stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: native stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &httpStatusError{Status: resp.StatusCode}
	}

	ch := make(chan StreamDelta, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 256*1024), 256*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- StreamDelta{Err: ctx.Err()}
				return
			default:
			}

			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk nativeResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				ch <- StreamDelta{Err: fmt.Errorf("llm adapter: parse native chunk: %w", err)}
				return
			}
			if chunk.Message.Content != "" {
				ch <- StreamDelta{Text: chunk.Message.Content}
			}
			if chunk.Done {
				ch <- StreamDelta{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamDelta{Err: fmt.Errorf("llm adapter: read native stream: %w", err)}
		}
	}()

	return ch, nil
}
