package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// stopAgentRequest is the body of POST /stop-agent.
type stopAgentRequest struct {
	SessionID string `json:"sessionId"`
}

// postStopAgent handles POST /stop-agent (spec §6: "{sessionId} → sets
// stop-requested").
func (s *Server) postStopAgent(w http.ResponseWriter, r *http.Request) {
	var req stopAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required", "")
		return
	}
	if err := s.manager.Stop(req.SessionID); err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	writeSuccess(w)
}

// clearSessionRequest is the body of POST /clear-session.
type clearSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// postClearSession handles POST /clear-session (spec §6: "{sessionId} →
// removes from registry").
func (s *Server) postClearSession(w http.ResponseWriter, r *http.Request) {
	var req clearSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required", "")
		return
	}
	s.manager.Remove(req.SessionID)
	writeSuccess(w)
}

// compactRequest is the body of POST /compact.
type compactRequest struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model,omitempty"`
}

// postCompact handles POST /compact (spec §6: "{sessionId, model?} → runs
// compaction, returns before/after counts").
func (s *Server) postCompact(w http.ResponseWriter, r *http.Request) {
	var req compactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required", "")
		return
	}
	before, after, err := s.manager.Compact(r.Context(), req.SessionID, req.Model)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"before": before, "after": after})
}

// switchModelRequest is the body of POST /switch-model.
type switchModelRequest struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
}

// postSwitchModel handles POST /switch-model (spec §6: "{sessionId, model}
// → updates session model and compacts").
func (s *Server) postSwitchModel(w http.ResponseWriter, r *http.Request) {
	var req switchModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "sessionId and model are required", "")
		return
	}
	if err := s.manager.SwitchModel(r.Context(), req.SessionID, req.Model); err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	writeSuccess(w)
}

// activeSessionSummary is the light-weight projection of a live Session
// returned by GET /sessions, deliberately omitting the full message log.
type activeSessionSummary struct {
	ID            string `json:"id"`
	Model         string `json:"model,omitempty"`
	Mode          string `json:"mode"`
	WorkspaceRoot string `json:"workspaceRoot"`
	Step          int    `json:"step"`
	HasPending    bool   `json:"hasPending"`
}

// getSessions handles GET /sessions (spec §6: "{active:[…], saved:[…]}").
// The optional workspaceRoot query param scopes the saved-conversation
// listing; active sessions are reported process-wide.
func (s *Server) getSessions(w http.ResponseWriter, r *http.Request) {
	active := s.manager.Active()
	summaries := make([]activeSessionSummary, 0, len(active))
	for _, sess := range active {
		summaries = append(summaries, activeSessionSummary{
			ID:            sess.ID,
			Model:         sess.Model,
			Mode:          string(sess.Mode),
			WorkspaceRoot: sess.WorkspaceRoot,
			Step:          sess.Step,
			HasPending:    sess.HasPending(),
		})
	}

	var saved []string
	if root := r.URL.Query().Get("workspaceRoot"); root != "" {
		ids, err := s.manager.Store(root).ListConversations(r.Context())
		if err == nil {
			saved = ids
		}
	}
	if saved == nil {
		saved = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"active": summaries, "saved": saved})
}

// getSessionByID handles GET /sessions/:id (spec §6: "Load ... a persisted
// conversation").
func (s *Server) getSessionByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	root := r.URL.Query().Get("workspaceRoot")
	if root == "" {
		writeError(w, http.StatusBadRequest, "workspaceRoot query param is required", "")
		return
	}
	rec, err := s.manager.Store(root).LoadConversation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "no persisted conversation for session "+id, "")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// deleteSessionByID handles DELETE /sessions/:id (spec §6: "... / delete
// a persisted conversation").
func (s *Server) deleteSessionByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	root := r.URL.Query().Get("workspaceRoot")
	if root == "" {
		writeError(w, http.StatusBadRequest, "workspaceRoot query param is required", "")
		return
	}
	if err := s.manager.Store(root).DeleteConversation(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.manager.Remove(id)
	writeSuccess(w)
}
