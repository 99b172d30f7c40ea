package server

import (
	"net/http"
)

// getCodebase handles GET /codebase (spec §6: "Returns the cached file
// index for a workspace, building it on first request").
func (s *Server) getCodebase(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("workspaceRoot")
	if root == "" {
		writeError(w, http.StatusBadRequest, "workspaceRoot query param is required", "")
		return
	}
	idx, err := s.manager.Index(root).Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

// postCodebaseReindex handles POST /codebase/reindex (spec §6: "Invalidates
// the cached index, forcing a rebuild on the next GET /codebase").
func (s *Server) postCodebaseReindex(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("workspaceRoot")
	if root == "" {
		writeError(w, http.StatusBadRequest, "workspaceRoot query param is required", "")
		return
	}
	s.manager.Index(root).Invalidate()
	writeSuccess(w)
}
