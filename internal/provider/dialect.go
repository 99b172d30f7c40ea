package provider

import (
	"encoding/json"

	"github.com/rushi32/IsoCode/pkg/types"
)

// chatMessage is one entry in the OpenAI-compatible chat-completions dialect.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// chatRequest is the request body for POST {base}/chat/completions.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Stream         bool          `json:"stream,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Tools          []chatTool    `json:"tools,omitempty"`
	ToolChoice     string        `json:"tool_choice,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	Delta        chatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
	Text         string      `json:"text"`
}

// chatResponse is the response body for both the non-streaming and the
// per-chunk streaming shape; the two share every field the adapter reads.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Output  string       `json:"output"`
	Text    string       `json:"text"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// nativeMessage/nativeRequest/nativeResponse model the local-default
// provider's own (Ollama-shaped) chat dialect: POST {base}/api/chat.
type nativeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type nativeRequest struct {
	Model    string          `json:"model"`
	Messages []nativeMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
	Format   string          `json:"format,omitempty"`
}

type nativeResponse struct {
	Message struct {
		Role            string `json:"role"`
		Content         string `json:"content"`
		ReasoningContent string `json:"reasoning_content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func toChatMessages(messages []types.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toNativeMessages(messages []types.Message) []nativeMessage {
	out := make([]nativeMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, nativeMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toChatTools(tools []ToolSchema) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func parseToolCallArgs(raw string) map[string]any {
	var args map[string]any
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	return args
}
