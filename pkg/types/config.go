package types

// PermissionAction is the policy verb attached to a tool or a bash/edit
// category (spec §4.4 step 2: "each tool has a policy ∈ {always, ask,
// never}").
type PermissionAction string

const (
	ActionAlways PermissionAction = "always"
	ActionAsk    PermissionAction = "ask"
	ActionNever  PermissionAction = "never"
)

// PermissionConfig holds the per-category policy settings exposed through
// /config and the underlying user-config.json.
type PermissionConfig struct {
	Bash        PermissionAction `json:"bash,omitempty"`
	Edit        PermissionAction `json:"edit,omitempty"`
	WebFetch    PermissionAction `json:"webfetch,omitempty"`
	ExternalDir PermissionAction `json:"external_directory,omitempty"`
	DoomLoop    PermissionAction `json:"doom_loop,omitempty"`
}

// MCPServerConfig describes one configured external tool server.
type MCPServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ProviderConfig carries connection details for the LLM Adapter.
type ProviderConfig struct {
	Provider string `json:"provider,omitempty"` // "local" (native dialect candidate) or any other name
	APIBase  string `json:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
}

// Config is the merged runtime configuration: process environment, then
// user-config.json, then live /config updates, later wins.
type Config struct {
	Provider         ProviderConfig    `json:"provider"`
	Model            string            `json:"model,omitempty"`
	Port             int               `json:"port,omitempty"`
	Permission       PermissionConfig  `json:"permission"`
	MCPServers       []MCPServerConfig `json:"mcpServers,omitempty"`
	ContextBudget    int               `json:"contextBudget,omitempty"`
	MaxHistory       int               `json:"maxHistory,omitempty"`
	Temperature      float64           `json:"temperature,omitempty"`
	MaxWorkers       int               `json:"maxWorkers,omitempty"`
	VisionModel      string            `json:"visionModel,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
}

// DefaultContextBudget is the token window used when the config omits one.
const DefaultContextBudget = 16384

// ReplyReserveTokens is subtracted from the context budget for the model's reply.
const ReplyReserveTokens = 1024
