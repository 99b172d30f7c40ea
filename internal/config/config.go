package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/rushi32/IsoCode/pkg/types"
)

// defaultConfig returns the built-in configuration, including the default
// permission policy, that applies where no config source overrides it.
func defaultConfig() *types.Config {
	return &types.Config{
		Provider: types.ProviderConfig{
			Provider: "local",
			APIBase:  "http://localhost:11434/v1",
		},
		Port: 8080,
		Permission: types.PermissionConfig{
			Bash:        types.ActionAsk,
			Edit:        types.ActionAsk,
			WebFetch:    types.ActionAlways,
			ExternalDir: types.ActionAsk,
			DoomLoop:    types.ActionAsk,
		},
		ContextBudget: types.DefaultContextBudget,
		MaxHistory:    100,
		Temperature:   0.2,
		MaxWorkers:    2,
	}
}

// Load builds the merged configuration for a workspace: process environment
// first, then the global user-config.json, then a workspace-local override,
// later source wins per key.
func Load(workspaceRoot string) (*types.Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	loadConfigFile(GlobalConfigPath(), cfg)
	if workspaceRoot != "" {
		loadConfigFile(ProjectConfigPath(workspaceRoot), cfg)
	}
	return cfg, nil
}

// loadConfigFile overlays a JSONC config file onto cfg if it exists.
func loadConfigFile(path string, cfg *types.Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	data = jsonc.ToJSON(data)

	var file types.Config
	if err := json.Unmarshal(data, &file); err != nil {
		return
	}
	merge(cfg, &file)
}

// merge overlays non-zero fields of src onto dst.
func merge(dst, src *types.Config) {
	if src.Provider.Provider != "" {
		dst.Provider.Provider = src.Provider.Provider
	}
	if src.Provider.APIBase != "" {
		dst.Provider.APIBase = src.Provider.APIBase
	}
	if src.Provider.APIKey != "" {
		dst.Provider.APIKey = src.Provider.APIKey
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Permission.Bash != "" {
		dst.Permission.Bash = src.Permission.Bash
	}
	if src.Permission.Edit != "" {
		dst.Permission.Edit = src.Permission.Edit
	}
	if src.Permission.WebFetch != "" {
		dst.Permission.WebFetch = src.Permission.WebFetch
	}
	if src.Permission.ExternalDir != "" {
		dst.Permission.ExternalDir = src.Permission.ExternalDir
	}
	if src.Permission.DoomLoop != "" {
		dst.Permission.DoomLoop = src.Permission.DoomLoop
	}
	if len(src.MCPServers) > 0 {
		dst.MCPServers = src.MCPServers
	}
	if src.ContextBudget != 0 {
		dst.ContextBudget = src.ContextBudget
	}
	if src.MaxHistory != 0 {
		dst.MaxHistory = src.MaxHistory
	}
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxWorkers != 0 {
		dst.MaxWorkers = src.MaxWorkers
	}
	if src.VisionModel != "" {
		dst.VisionModel = src.VisionModel
	}
	if src.SystemPrompt != "" {
		dst.SystemPrompt = src.SystemPrompt
	}
}

// applyEnvOverrides seeds cfg from process environment variables.
func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("ISOCODE_PROVIDER"); v != "" {
		cfg.Provider.Provider = v
	}
	if v := os.Getenv("ISOCODE_API_BASE"); v != "" {
		cfg.Provider.APIBase = v
	}
	if v := os.Getenv("ISOCODE_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ISOCODE_MODEL"); v != "" {
		cfg.Model = v
	}
}

// Save persists cfg as the workspace-local user-config.json (the target of
// POST /config updates).
func Save(cfg *types.Config, workspaceRoot string) error {
	path := ProjectConfigPath(workspaceRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// MergeInto applies a partial update (as decoded from a /config request body)
// onto the live config, later (the update) wins, then saves it.
func MergeInto(cfg *types.Config, update *types.Config, workspaceRoot string) error {
	merge(cfg, update)
	return Save(cfg, workspaceRoot)
}
