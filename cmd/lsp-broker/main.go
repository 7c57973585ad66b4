// lsp-broker routes multiple editor sessions onto deduplicated LSP server
// processes: one broker instance serves many editors attached to the same
// project without forcing each to launch its own language server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"rockerboo/lsp-broker/config"
	"rockerboo/lsp-broker/internal/buildinfo"
	"rockerboo/lsp-broker/knowledge"
	"rockerboo/lsp-broker/logger"
	"rockerboo/lsp-broker/sessions"
)

var (
	configPath   = flag.String("config", "", "path to broker.yaml")
	listenAddr   = flag.String("listen", "", "override listen_addr from config")
	mcpEnabled   = flag.Bool("mcp", false, "serve a broker_status MCP tool over stdio alongside the websocket listener")
	printVersion = flag.Bool("version", false, "print the broker version and exit")
)

func main() {
	flag.Parse()

	if *printVersion {
		log.Println("lsp-broker", buildinfo.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("lsp-broker: %v", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	registry := sessions.NewRegistry()
	know := knowledge.New()
	defer know.Close()

	statusTracker := newStatusTracker()
	routing := startRoutingService(statusTracker, registry, know, cfg)

	gateway := sessions.NewGateway(routing, registry)
	mux := http.NewServeMux()
	mux.Handle("/lsp", gateway)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	if *mcpEnabled {
		go serveMCPStatus(statusTracker)
	}

	go func() {
		logger.Info("lsp-broker: listening on " + cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("lsp-broker: listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("lsp-broker: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	routing.TerminateAll(shutdownCtx)
}

func serveMCPStatus(tracker *statusTracker) {
	mcpServer := server.NewMCPServer("lsp-broker", buildinfo.String())
	tool, handler := BrokerStatusTool(tracker)
	mcpServer.AddTool(tool, handler)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Warn("lsp-broker: mcp stdio server exited: " + err.Error())
	}
}
