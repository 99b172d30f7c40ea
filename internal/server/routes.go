package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes wires the HTTP surface named in spec §6.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/", s.statusPage)
	r.Get("/health", s.getHealth)
	r.Get("/models", s.getModels)
	r.Post("/config", s.postConfig)
	r.Get("/mcp-status", s.getMCPStatus)

	r.Post("/chat", s.postChat)
	r.Post("/stop-agent", s.postStopAgent)
	r.Post("/clear-session", s.postClearSession)
	r.Post("/compact", s.postCompact)
	r.Post("/switch-model", s.postSwitchModel)

	r.Get("/sessions", s.getSessions)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.getSessionByID)
		r.Delete("/", s.deleteSessionByID)
	})

	r.Get("/codebase", s.getCodebase)
	r.Post("/codebase/reindex", s.postCodebaseReindex)
}
