// Package provider implements the LLM Adapter: a single HTTP client that
// talks to either a local-default provider's native endpoint or any
// OpenAI-compatible chat-completions endpoint, with escalating retries,
// streaming, vision and exhaustive content extraction.
//
// Earlier revisions of this codebase wrapped github.com/cloudwego/eino-ext
// per-vendor ChatModel implementations; that package is not part of this
// module's dependency set (see DESIGN.md), so the adapter talks HTTP
// directly, grounded on the retry/streaming shape of the example corpus's
// hand-rolled LLM clients.
package provider

import (
	"net/http"
	"time"

	"github.com/rushi32/IsoCode/pkg/types"
)

// localDialect is the provider name that selects the local dispatch path:
// Stream and CallVision use the native endpoint, ListModels tries the
// native tag endpoint first, and Call (spec §4.5: "for a local-default provider, the adapter
// tries the chat-completions dialect first and, on empty/failed result,
// falls back to the provider's native chat endpoint").
const localDialect = "local"

// Options carries the per-call knobs the ReAct engine and Context Manager
// can set. Zero values mean "use the adapter's configured default".
type Options struct {
	Temperature float64
	MaxTokens   int
	TimeoutSecs int
	ExpectJSON  bool

	// Tools, when non-empty, are offered to the model as native function
	// schemas. ToolChoice is an optional hint ("auto", "none", or a tool name).
	Tools      []ToolSchema
	ToolChoice string
}

// ToolSchema is the adapter's wire-agnostic description of one callable
// tool, translated into each dialect's native tool/function format.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema "properties"/"required" shape
}

// ToolCall is one function call the model asked to make.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// CallResult is the adapter's unified non-streaming response: either plain
// content, or content plus one or more requested tool calls.
type CallResult struct {
	Content   string
	ToolCalls []ToolCall
}

// ModelInfo is one entry returned by ListModels.
type ModelInfo = types.Model

// HealthStatus is the adapter's liveness report for its configured provider.
type HealthStatus struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider"`
	Error    string `json:"error,omitempty"`
}

// Adapter is the concrete LLM Adapter. One Adapter is configured per
// provider (APIBase + APIKey); the Session Manager holds one per
// configured provider and the ReAct engine calls through it by model name.
type Adapter struct {
	Provider string
	APIBase  string
	APIKey   string
	http     *http.Client

	defaultTemperature float64
	defaultMaxTokens   int
	defaultTimeout     time.Duration
}

// New constructs an Adapter for the given provider config. provider is
// either localDialect ("local") to select the local dispatch path described
// on localDialect, or any other name to use the chat-completions dialect
// exclusively.
func New(cfg types.ProviderConfig, defaultTemperature float64, defaultMaxTokens int) *Adapter {
	base := cfg.APIBase
	if base == "" {
		base = "http://localhost:11434"
	}
	providerName := cfg.Provider
	if providerName == "" {
		providerName = localDialect
	}
	return &Adapter{
		Provider: providerName,
		APIBase:  base,
		APIKey:   cfg.APIKey,
		http: &http.Client{
			// No client-level timeout: each request derives its deadline
			// from ctx/Options.TimeoutSecs so long model generations aren't
			// cut short by a fixed transport timeout.
		},
		defaultTemperature: defaultTemperature,
		defaultMaxTokens:   defaultMaxTokens,
	}
}

func (a *Adapter) isLocal() bool {
	return a.Provider == localDialect
}

func (a *Adapter) resolveOptions(opts Options) Options {
	if opts.Temperature == 0 {
		opts.Temperature = a.defaultTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = a.defaultMaxTokens
	}
	if opts.TimeoutSecs == 0 {
		opts.TimeoutSecs = 120
	}
	return opts
}

func (a *Adapter) authHeader() (string, string) {
	if a.APIKey == "" {
		return "", ""
	}
	return "Authorization", "Bearer " + a.APIKey
}
