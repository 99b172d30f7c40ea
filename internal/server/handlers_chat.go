package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rushi32/IsoCode/internal/event"
	"github.com/rushi32/IsoCode/internal/provider"
	"github.com/rushi32/IsoCode/pkg/types"
)

// contextAttachment is one editor-supplied file attached to a turn (spec
// §6 POST /chat body: "context: [{path, content}]").
type contextAttachment struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat (spec §6, §2 mode derivation).
type ChatRequest struct {
	Message       string              `json:"message"`
	AutoMode      bool                `json:"autoMode"`
	AgentPlus     bool                `json:"agentPlus"`
	Model         string              `json:"model"`
	SessionID     string              `json:"sessionId"`
	Decision      string              `json:"decision,omitempty"`
	Context       []contextAttachment `json:"context,omitempty"`
	WorkspaceRoot string              `json:"workspaceRoot"`
}

// modeOf derives the session mode from the autoMode/agentPlus flags (spec
// §2: "mode (chat | agent | agent-plus)"). Plain chat bypasses the Session
// Manager and ReAct loop entirely; auto-mode turns go through the agent.
func (req ChatRequest) modeOf() types.Mode {
	if !req.AutoMode {
		return types.ModeChat
	}
	if req.AgentPlus {
		return types.ModeAgentPlus
	}
	return types.ModeAgent
}

// buildUserMessage concatenates the free-text message with any editor
// context attachments into the single user-turn string the Session Manager
// and the plain-chat path both consume.
func buildUserMessage(req ChatRequest) string {
	if len(req.Context) == 0 {
		return req.Message
	}
	var b strings.Builder
	b.WriteString(req.Message)
	for _, c := range req.Context {
		b.WriteString("\n\n--- ")
		b.WriteString(c.Path)
		b.WriteString(" ---\n")
		b.WriteString(c.Content)
	}
	return b.String()
}

// postChat handles POST /chat, the single entry point for every chat,
// agent, and agent-plus turn (spec §6). It negotiates SSE vs a single JSON
// response by the request's Accept header and dispatches to either the
// plain-chat passthrough or the Session Manager's ReAct loop.
func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required", "")
		return
	}
	wantsSSE := strings.Contains(r.Header.Get("Accept"), "text/event-stream")

	mode := req.modeOf()
	if mode == types.ModeChat {
		s.handlePlainChat(w, r, req, wantsSSE)
		return
	}
	s.handleAgentChat(w, r, req, mode, wantsSSE)
}

// handlePlainChat forwards token deltas from the LLM adapter untouched
// (spec §2), bypassing the Session Manager: a single user message in, a
// stream of chunk events out, terminated by a done event.
func (s *Server) handlePlainChat(w http.ResponseWriter, r *http.Request, req ChatRequest, wantsSSE bool) {
	msgs := []types.Message{{Role: types.RoleUser, Content: buildUserMessage(req)}}
	model := req.Model
	if model == "" {
		model = s.appConfig().Model
	}
	deltas, err := s.provider.Stream(r.Context(), model, msgs, provider.Options{})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), "")
		return
	}

	if !wantsSSE {
		var out strings.Builder
		for d := range deltas {
			if d.Err != nil {
				writeError(w, http.StatusBadGateway, d.Err.Error(), "")
				return
			}
			out.WriteString(d.Text)
		}
		writeJSON(w, http.StatusOK, map[string]string{"sessionId": req.SessionID, "content": out.String()})
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	for d := range deltas {
		if d.Err != nil {
			sse.send(event.Event{Type: event.Error, Data: event.ErrorData{SessionID: req.SessionID, Content: d.Err.Error()}})
			return
		}
		if d.Text != "" {
			sse.send(event.Event{Type: event.Chunk, Data: event.ChunkData{SessionID: req.SessionID, Content: d.Text}})
		}
	}
	sse.send(event.Event{Type: event.Done, Data: event.ChunkData{SessionID: req.SessionID}})
}

// handleAgentChat drives one ReAct turn through the Session Manager,
// either continuing an approval decision or opening/resuming the session
// with a fresh user message, then runs the loop with a session-scoped
// subscriber draining events to the SSE stream (or, for plain JSON
// clients, into a buffered response).
func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request, req ChatRequest, mode types.Mode, wantsSSE bool) {
	ctx := r.Context()

	if req.Decision != "" {
		if _, err := s.manager.ResumeWithDecision(ctx, req.SessionID, req.Decision); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
	} else {
		explicitContext := len(req.Context) > 0
		if _, _, err := s.manager.OpenOrGet(ctx, req.SessionID, mode, req.Model, req.WorkspaceRoot, buildUserMessage(req), explicitContext); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
	}

	sess, ok := s.manager.Get(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found: "+req.SessionID, "")
		return
	}

	if wantsSSE {
		sse, err := newSSEWriter(w)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
		unsubscribe := subscribeSession(req.SessionID, sse)
		defer unsubscribe()

		if err := s.manager.Run(ctx, sess); err != nil {
			sse.send(event.Event{Type: event.Error, Data: event.ErrorData{SessionID: req.SessionID, Content: err.Error()}})
		}
		sse.send(event.Event{Type: event.Done, Data: event.ChunkData{SessionID: req.SessionID}})
		return
	}

	var collected []map[string]any
	unsubscribe := event.SubscribeAll(func(e event.Event) {
		if sessionIDOf(e) != req.SessionID {
			return
		}
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return
		}
		fields := map[string]any{}
		json.Unmarshal(raw, &fields)
		fields["type"] = string(e.Type)
		collected = append(collected, fields)
	})
	defer unsubscribe()

	runErr := s.manager.Run(ctx, sess)
	resp := map[string]any{"sessionId": req.SessionID, "events": collected}
	if runErr != nil {
		resp["error"] = runErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
