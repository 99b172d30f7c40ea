package tool

import (
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/rushi32/IsoCode/internal/logging"
	"github.com/rushi32/IsoCode/internal/permission"
	"github.com/rushi32/IsoCode/internal/storage"
	"github.com/rushi32/IsoCode/pkg/types"
)

// Registry manages tool registration and lookup. It holds the full set of
// leaf tools available to a workspace; the Dispatcher (dispatch.go) is what
// enforces permission policy and path confinement before invoking them.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	workDir string
	storage *storage.Storage
}

// NewRegistry creates a new tool registry.
func NewRegistry(workDir string, store *storage.Storage) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		workDir: workDir,
		storage: store,
	}
}

// Storage returns the storage instance.
func (r *Registry) Storage() *storage.Storage {
	return r.storage
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Logger.Debug().Str("tool", t.ID()).Msg("registering tool")
	r.tools[t.ID()] = t
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// IDs returns all tool IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}

// EinoTools returns Eino-compatible tools, used for the native tool-call path
// when the provider supports structured tool schemas directly.
func (r *Registry) EinoTools() []einotool.BaseTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]einotool.BaseTool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t.EinoTool())
	}
	return tools
}

// ToolInfos returns Eino tool infos for all tools.
func (r *Registry) ToolInfos() ([]*schema.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		params := parseJSONSchemaToParams(t.Parameters())
		infos = append(infos, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos, nil
}

// DefaultRegistry creates a registry with all built-in tools, wiring the
// permission checker into the bash tool's own pattern-matching gate (the
// remaining categories — edit/write/webfetch/external-directory — are
// gated by the Dispatcher, not by the leaf tools themselves). visionCaller
// and visionModel may be nil/empty when no vision-capable model is
// configured; the vision tool then only loads images without describing them.
func DefaultRegistry(workDir string, store *storage.Storage, checker *permission.Checker, perm types.PermissionConfig, visionCaller VisionCaller, visionModel string) *Registry {
	r := NewRegistry(workDir, store)

	r.Register(NewReadTool(workDir))
	r.Register(NewWriteTool(workDir))
	r.Register(NewEditTool(workDir))
	r.Register(NewBashTool(workDir,
		WithPermissionChecker(checker),
		WithExternalDirAction(perm.ExternalDir),
	))
	r.Register(NewGlobTool(workDir))
	r.Register(NewGrepTool(workDir))
	r.Register(NewListTool(workDir))
	r.Register(NewWebFetchTool(workDir))

	r.Register(NewTodoWriteTool(workDir, store))
	r.Register(NewTodoReadTool(workDir, store))

	r.Register(NewGitTool(workDir))
	r.Register(NewLintTool(workDir))
	r.Register(NewTestTool(workDir))
	r.Register(NewMemoryTool(workDir))
	r.Register(NewVisionTool(workDir, visionCaller, visionModel))
	r.Register(NewBrowserTool(workDir))

	r.Register(NewBatchTool(workDir, r))

	logging.Logger.Info().Strs("tools", r.IDs()).Msg("default tool registry built")
	return r
}
