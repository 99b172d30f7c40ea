package provider

import (
	"encoding/json"
	"strings"
)

// maxScanFieldChars bounds the last-ditch string-field scan (spec §4.5:
// "any non-empty string field under 500,000 chars").
const maxScanFieldChars = 500000

// extractChatContent implements the exhaustive content-extraction chain for
// the chat-completions dialect: message.content (string), then
// array-of-parts joined, then reasoning_content, then choice.text, then
// top-level output/text, then the first choice's fields, then a last-ditch
// scan of the raw JSON for any non-empty string under maxScanFieldChars.
func extractChatContent(resp *chatResponse, raw []byte) string {
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		msg := choice.Message
		if msg.Content == nil && choice.Delta.Content != nil {
			msg = choice.Delta
		}

		if s, ok := msg.Content.(string); ok && s != "" {
			return s
		}
		if parts, ok := msg.Content.([]any); ok {
			if joined := joinContentParts(parts); joined != "" {
				return joined
			}
		}
		var rc struct {
			Choices []struct {
				Message struct {
					ReasoningContent string `json:"reasoning_content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if json.Unmarshal(raw, &rc) == nil && len(rc.Choices) > 0 && rc.Choices[0].Message.ReasoningContent != "" {
			return rc.Choices[0].Message.ReasoningContent
		}
		if choice.Text != "" {
			return choice.Text
		}
	}

	if resp.Output != "" {
		return resp.Output
	}
	if resp.Text != "" {
		return resp.Text
	}

	if len(resp.Choices) > 0 {
		if s := firstNonEmptyString(resp.Choices[0]); s != "" {
			return s
		}
	}

	return scanForStringField(raw)
}

// joinContentParts concatenates an OpenAI-style content-parts array
// ([{"type":"text","text":"..."}]) into one string.
func joinContentParts(parts []any) string {
	var b strings.Builder
	for _, p := range parts {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := m["text"].(string); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}

// firstNonEmptyString reflects over a chatChoice via JSON round-trip to find
// any populated string field; only the fields the chatChoice type declares
// survive the round trip, so undeclared provider additions are not seen.
func firstNonEmptyString(choice chatChoice) string {
	raw, err := json.Marshal(choice)
	if err != nil {
		return ""
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return ""
	}
	return scanMapForString(generic)
}

func scanMapForString(m map[string]any) string {
	for _, v := range m {
		switch val := v.(type) {
		case string:
			if val != "" && len(val) < maxScanFieldChars {
				return val
			}
		case map[string]any:
			if s := scanMapForString(val); s != "" {
				return s
			}
		}
	}
	return ""
}

// scanForStringField is the last-ditch extraction: unmarshal the raw
// response body into a generic map and return the first non-empty string
// field found anywhere in the structure.
func scanForStringField(raw []byte) string {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return ""
	}
	return scanMapForString(generic)
}

// extractNativeContent applies the same precedence to the native dialect's
// response shape: message.content, then reasoning_content, then a last-ditch
// scan of the raw body.
func extractNativeContent(resp *nativeResponse, raw []byte) string {
	if resp.Message.Content != "" {
		return resp.Message.Content
	}
	if resp.Message.ReasoningContent != "" {
		return resp.Message.ReasoningContent
	}
	return scanForStringField(raw)
}
