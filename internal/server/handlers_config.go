package server

import (
	"encoding/json"
	"net/http"

	"github.com/rushi32/IsoCode/pkg/types"
)

// getHealth handles GET /health (spec §6: "{ok, provider, error?} from
// §4.5").
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	h := s.provider.Health(r.Context())
	writeJSON(w, http.StatusOK, h)
}

// modelsResponse is the GET /models body. Unlike most handlers this always
// answers HTTP 200, even when the upstream provider call failed (spec §6:
// "HTTP 200 even on backend failure"), so the editor extension can render
// a degraded-but-not-erroring model picker.
type modelsResponse struct {
	Models   []types.Model `json:"models"`
	Provider string        `json:"provider"`
	Error    string        `json:"error,omitempty"`
}

func (s *Server) getModels(w http.ResponseWriter, r *http.Request) {
	cfg := s.appConfig()
	models, err := s.provider.ListModels(r.Context())
	resp := modelsResponse{Models: models, Provider: cfg.Provider.Provider}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// postConfig handles POST /config (spec §6: "Merges runtime config:
// permission policy, external-server list, context budget, history cap,
// system-prompt override, provider settings. Persists to an on-disk
// user-config JSON.").
func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	var update types.Config
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	workspaceRoot := r.URL.Query().Get("workspaceRoot")
	merged, err := s.updateConfig(&update, workspaceRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

// getMCPStatus handles GET /mcp-status (spec §6: "Lists configured
// external tool servers").
func (s *Server) getMCPStatus(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, http.StatusOK, map[string]any{"servers": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.mcp.Status()})
}
