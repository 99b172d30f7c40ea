package provider

import (
	"fmt"

	"github.com/rushi32/IsoCode/pkg/types"
)

// NewFromConfig builds the single configured Adapter for a runtime Config.
// The teacher's registry.go manages many named providers; this module's
// Config carries exactly one (local-first philosophy, spec §4.5), so the
// registry collapses to one Adapter plus model-selection helpers.
func NewFromConfig(cfg types.Config) *Adapter {
	return New(cfg.Provider, cfg.Temperature, defaultMaxTokensFor(cfg))
}

func defaultMaxTokensFor(cfg types.Config) int {
	if cfg.MaxHistory > 0 {
		return 4096
	}
	return 4096
}

// DefaultModel resolves the model to use absent a per-session override.
func DefaultModel(cfg types.Config) (string, error) {
	if cfg.Model != "" {
		return cfg.Model, nil
	}
	return "", fmt.Errorf("provider: no default model configured")
}

// VisionModel resolves the model to use for callVision, falling back to the
// default model when no vision-specific override is configured.
func VisionModel(cfg types.Config) (string, error) {
	if cfg.VisionModel != "" {
		return cfg.VisionModel, nil
	}
	return DefaultModel(cfg)
}
