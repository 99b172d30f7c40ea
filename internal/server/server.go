// Package server is the Server Boundary (spec §4.6, §6): the HTTP + SSE
// surface the editor front-end talks to. It performs input validation,
// constructs the SSE writer, and delegates everything else to the Session
// Manager, the Tool Dispatcher's collaborators, and the LLM Adapter; it
// owns timeouts and CORS, nothing else.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/mcp"
	"github.com/rushi32/IsoCode/internal/provider"
	"github.com/rushi32/IsoCode/internal/session"
	"github.com/rushi32/IsoCode/pkg/types"
)

// Config holds server-process-level configuration (distinct from
// types.Config, the merged runtime/provider/permission config).
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server-process configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: /chat SSE streams can run for minutes
	}
}

// Server is the HTTP server backing the Server Boundary.
type Server struct {
	cfg     *Config
	router  *chi.Mux
	httpSrv *http.Server

	appMu  sync.RWMutex
	appCfg *types.Config

	manager  *session.Manager
	provider *provider.Adapter
	mcp      *mcp.Client
}

// New constructs a Server wired to a Session Manager, the shared LLM
// Adapter, and an MCP client (spec §4.6, §6).
func New(cfg *Config, appCfg *types.Config, manager *session.Manager, prov *provider.Adapter, mcpClient *mcp.Client) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		appCfg:   appCfg,
		manager:  manager,
		provider: prov,
		mcp:      mcpClient,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	if s.cfg.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start begins serving HTTP traffic; it blocks until Shutdown is called or
// the listener fails.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// appConfig returns a snapshot of the live runtime config (spec §9 Open
// Question 3: "/config updates ... only affect sessions opened afterward",
// so handlers always read under the lock but never hold a stale pointer
// across a request).
func (s *Server) appConfig() types.Config {
	s.appMu.RLock()
	defer s.appMu.RUnlock()
	return *s.appCfg
}

// updateConfig merges a partial update into the live config and persists
// it, matching config.MergeInto's later-wins semantics (spec §6 POST
// /config).
func (s *Server) updateConfig(update *types.Config, workspaceRoot string) (types.Config, error) {
	s.appMu.Lock()
	defer s.appMu.Unlock()
	if err := config.MergeInto(s.appCfg, update, workspaceRoot); err != nil {
		return types.Config{}, err
	}
	return *s.appCfg, nil
}
