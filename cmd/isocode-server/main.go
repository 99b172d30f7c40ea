// Command isocode-server runs the local agentic coding assistant as a
// headless HTTP/SSE server (spec §4.6, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/logging"
	"github.com/rushi32/IsoCode/internal/mcp"
	"github.com/rushi32/IsoCode/internal/permission"
	"github.com/rushi32/IsoCode/internal/provider"
	"github.com/rushi32/IsoCode/internal/server"
	"github.com/rushi32/IsoCode/internal/session"
)

var (
	port       = flag.Int("port", 8080, "Server port")
	directory  = flag.String("directory", "", "Workspace root (defaults to the current directory)")
	printLogs  = flag.Bool("print-logs", false, "Print structured logs to stderr")
	logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	versionFlg = flag.Bool("version", false, "Print version and exit")
)

const version = "0.1.0"

func main() {
	flag.Parse()

	if *versionFlg {
		fmt.Printf("isocode-server %s\n", version)
		os.Exit(0)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(*logLevel)
	if !*printLogs {
		logCfg.Level = logging.FatalLevel
	}
	logging.Init(logCfg)

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to determine working directory")
		}
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		logging.Fatal().Err(err).Msg("failed to create data directories")
	}

	appCfg, err := config.Load(workDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	prov := provider.NewFromConfig(*appCfg)
	checker := permission.NewChecker()
	doomLoop := permission.NewDoomLoopDetector()

	ctx := context.Background()
	mcpClient := mcp.NewClient()
	for _, srvCfg := range appCfg.MCPServers {
		mcCfg := &mcp.Config{
			Enabled: true,
			Type:    mcp.TransportTypeLocal,
			Command: append([]string{srvCfg.Command}, srvCfg.Args...),
		}
		if len(srvCfg.Env) > 0 {
			mcCfg.Environment = srvCfg.Env
		}
		if err := mcpClient.AddServer(ctx, srvCfg.Name, mcCfg); err != nil {
			logging.Warn().Err(err).Str("server", srvCfg.Name).Msg("failed to connect MCP server")
		}
	}

	manager := session.NewManager(*appCfg, prov, checker, doomLoop, mcpClient)

	srvCfg := server.DefaultConfig()
	srvCfg.Port = *port
	srv := server.New(srvCfg, appCfg, manager, prov, mcpClient)

	go func() {
		logging.Info().Int("port", *port).Str("directory", workDir).Msg("isocode-server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down isocode-server")

	if err := mcpClient.Close(); err != nil {
		logging.Warn().Err(err).Msg("error closing MCP servers")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("isocode-server stopped")
}
