package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcporch/orchestrator/internal/config"
	"github.com/mcporch/orchestrator/internal/coordinator"
	"github.com/mcporch/orchestrator/internal/httpapi"
	"github.com/mcporch/orchestrator/internal/orchestrator"
	"github.com/mcporch/orchestrator/internal/reasoner"
	"github.com/mcporch/orchestrator/internal/reasoner/openaicompat"
	"github.com/mcporch/orchestrator/internal/registry"
	"github.com/mcporch/orchestrator/internal/session"
)

func main() {
	config.LoadEnv()

	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║          MCP Orchestrator              ║")
	fmt.Println("╚══════════════════════════════════════╝")

	serversPath := os.Getenv("MCP_SERVERS_CONFIG")
	if serversPath == "" {
		serversPath = "servers.json"
	}
	var defs []registry.ServerDefinition
	if _, statErr := os.Stat(serversPath); statErr == nil {
		loaded, loadErr := config.LoadServers(serversPath)
		if loadErr != nil {
			log.Fatalf("❌ Failed to load %s: %v", serversPath, loadErr)
		}
		defs = loaded
	} else {
		log.Printf("⚠️  no %s found, starting with zero configured servers", serversPath)
	}
	fmt.Printf("🔌 MCP servers: %d configured (from %s)\n", len(defs), serversPath)

	reg := registry.New()
	reg.Reload(defs)

	orchDefaults := config.LoadOrchestrationDefaults()
	coord := coordinator.New(reg, coordinator.DefaultAdapterFactory, orchDefaults.AutoDiscoveryEnabled)

	// Resolve health before the first request so GetAvailableTools/ExecuteTool
	// don't see every server as unhealthy on a cold start.
	healthCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	coord.PerformHealthChecks(healthCtx)
	cancel()

	r, err := newReasoner()
	if err != nil {
		log.Fatalf("❌ Failed to initialize reasoner: %v", err)
	}
	fmt.Printf("🤖 Reasoner: %s\n", os.Getenv("AI_DEFAULT_PROVIDER"))

	ctxDefaults := config.LoadContextDefaults()
	sessions := session.NewManager(session.Options{
		MaxSessions:     ctxDefaults.MaxSessions,
		MaxHistorySize:  ctxDefaults.MaxHistorySize,
		SessionTimeout:  ctxDefaults.SessionTimeout,
		CleanupInterval: ctxDefaults.CleanupInterval,
	})
	defer sessions.Close()

	orch := orchestrator.New(sessions, coord, r, orchestrator.Config{
		MaxConcurrentRequests: orchDefaults.MaxConcurrentRequests,
		DefaultMaxSteps:       orchDefaults.DefaultMaxSteps,
	})

	if orchDefaults.AutoDiscoveryEnabled && orchDefaults.HealthCheckInterval > 0 {
		go runHealthCheckLoop(coord, orchDefaults.HealthCheckInterval)
	}

	api := httpapi.New(orch, coord, reg, sessions)
	if err := serve(api); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

func newReasoner() (reasoner.Reasoner, error) {
	return openaicompat.New(openaicompat.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
	})
}

func runHealthCheckLoop(coord *coordinator.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		coord.PerformHealthChecks(ctx)
		cancel()
	}
}

// serve starts the HTTP server and blocks until a graceful shutdown
// completes.
func serve(handler http.Handler) error {
	port := os.Getenv("ORCHESTRATOR_PORT")
	if port == "" {
		port = "8090"
	}
	host := os.Getenv("ORCHESTRATOR_HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	addr := host + ":" + port

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("⚡ received signal %v, shutting down gracefully...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️  graceful shutdown error: %v", err)
		}
	}()

	fmt.Printf("🌐 orchestrator listening at http://%s\n", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		fmt.Println("✅ server stopped gracefully")
		return nil
	}
	return err
}

