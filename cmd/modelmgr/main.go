// modelmgr server — manages model containers through their lifecycle
// and proxies chat completions through the tool-orchestration loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/inferlab/modelmgr/pkg/api"
	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/driver"
	"github.com/inferlab/modelmgr/pkg/events"
	"github.com/inferlab/modelmgr/pkg/lifecycle"
	"github.com/inferlab/modelmgr/pkg/llm"
	"github.com/inferlab/modelmgr/pkg/memory"
	"github.com/inferlab/modelmgr/pkg/orchestrator"
	"github.com/inferlab/modelmgr/pkg/probe"
	"github.com/inferlab/modelmgr/pkg/services"
	"github.com/inferlab/modelmgr/pkg/tools"
	"github.com/inferlab/modelmgr/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogging configures the default slog handler from LOG_FORMAT and
// LOG_LEVEL. JSON at info level unless told otherwise.
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("MODELMGR_CONFIG", "./config.yaml"),
		"Path to server configuration file")
	flag.Parse()

	// Load .env from the config directory before logging setup so
	// LOG_LEVEL/LOG_FORMAT from the file take effect.
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err == nil {
		slog.Info("Loaded environment", "path", envPath)
	}

	setupLogging()

	slog.Info("Starting modelmgr",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	// 1. Load server configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Load the model catalog
	catalogPath := getEnv("MODELMGR_CATALOG", cfg.CatalogPath)
	catalog, err := config.LoadCatalog(catalogPath)
	if err != nil {
		slog.Error("Failed to load catalog", "path", catalogPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Catalog loaded", "path", catalogPath, "models", catalog.Len())

	// 3. Container driver, health prober, memory guard
	drv := driver.NewCLIDriver(cfg.Driver.Engine, cfg.Driver.Timeout())
	prober := probe.NewHTTPProber(cfg.Probe.Timeout())
	guard := memory.NewGuard(cfg.Memory.MinFreeGB, cfg.Memory.SafetyMarginGB)

	// 4. Warnings and the WebSocket status stream
	warnings := services.NewSystemWarningsService()
	connManager := events.NewConnectionManager(cfg.Events.WriteTimeout())
	publisher := events.NewStatusPublisher(connManager)

	// 5. Lifecycle engine; adopt containers that are already running
	engine := lifecycle.NewEngine(catalog, drv, prober, guard, publisher)
	engine.Reconcile(ctx)
	connManager.SetSnapshotFunc(engine.StatusFrames)
	slog.Info("Lifecycle engine initialized", "models", catalog.Len())

	// 6. Background health monitor
	var monitor *lifecycle.Monitor
	if !cfg.Monitor.Disabled {
		monitor = lifecycle.NewMonitor(engine, warnings,
			cfg.Monitor.Interval(), cfg.Monitor.FailureThreshold)
		monitor.Start()
		slog.Info("Health monitor started",
			"interval", cfg.Monitor.Interval(),
			"failure_threshold", cfg.Monitor.FailureThreshold)
	}

	// 7. Catalog watcher (live reloads, stopped models only)
	var watcher *config.CatalogWatcher
	if cfg.WatchCatalog {
		watcher, err = config.NewCatalogWatcher(catalogPath, engine.ReloadCatalog)
		if err != nil {
			slog.Warn("Catalog watching disabled", "error", err)
		} else {
			watcher.Start()
			slog.Info("Catalog watcher started", "path", catalogPath)
		}
	}

	// 8. Chat collaborators and the tool orchestrator
	pool := llm.NewPool(cfg.Chat.ModelTimeout())
	var search orchestrator.SearchService
	if cfg.Chat.SearchURL != "" {
		search = tools.NewSearchClient(cfg.Chat.SearchURL, cfg.Chat.SearchTimeout())
		slog.Info("Search service configured", "url", cfg.Chat.SearchURL)
	}
	var sandbox orchestrator.SandboxService
	if cfg.Chat.SandboxURL != "" {
		sandbox = tools.NewSandboxClient(cfg.Chat.SandboxURL, cfg.Chat.SandboxTimeout())
		slog.Info("Sandbox service configured", "url", cfg.Chat.SandboxURL)
	}
	orch := orchestrator.New(engine, pool, search, sandbox, warnings, *cfg.Chat)

	// 9. HTTP server (non-blocking)
	server := api.NewServer(*cfg.Server, engine, orch, guard, warnings, connManager)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("modelmgr started", "models", catalog.Len())

	// 10. Wait for a shutdown signal or a server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		exitCode = 1
	}

	// 11. Graceful shutdown, reverse construction order. Containers
	// are left running: a restarted manager re-adopts them.
	if watcher != nil {
		watcher.Stop()
	}
	if monitor != nil {
		monitor.Stop()
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	httpCancel()

	engine.Close()

	slog.Info("Shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
