// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/agent"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/config"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/proxy"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/retention"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/scenario"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/singleton"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/tools"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/transcript"
)

var (
	address          = flag.String("address", "", "The address to bind the proxy to")
	port             = flag.Int("port", 0, "The port to bind the proxy to")
	logLevel         = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	logFile          = flag.String("log-file", "", "Log file path (default: stderr)")
	version          = flag.Bool("version", false, "Show version information and exit")
	targetURL        = flag.String("target-url", "", "Upstream OpenAI-compatible base URL")
	agentProvider    = flag.String("agent-provider", "", "Agent backend: openai or anthropic (default: openai)")
	agentBaseURL     = flag.String("agent-base-url", "", "Custom base URL for OpenAI-compatible endpoints (e.g. Ollama, vLLM, Groq, LiteLLM)")
	agentModel       = flag.String("agent-model", "", "Model for the scenario-update agent (default: gpt-4o)")
	agentIterations  = flag.Int("agent-max-iterations", 0, "Maximum agent iterations per request (default: 20)")
	mcpConfigPath    = flag.String("mcp-config-path", "", "Path to MCP servers configuration file")
	scenarioDBPath   = flag.String("scenario-db-path", "", "Path to the scenario SQLite database (default: ~/.deeproleplay/scenario.db)")
	historyType      = flag.String("history-type", "", "Transcript persistence: json, txt or none (default: txt)")
	historyDir       = flag.String("history-dir", "", "Directory for persisted agent transcripts")
	historyRetention = flag.Int("history-retention-days", -1, "Days to keep persisted transcripts, 0 keeps forever (default: 30)")
)

func main() {
	flag.Parse()

	cfg := loadConfig()

	if *version {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := createApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	waitForShutdown(cancel, app)
}

// loadConfig layers defaults, environment variables and command-line flags.
func loadConfig() *config.Config {
	cfg := config.DefaultConfig()
	config.FromEnv(cfg)
	applyCommandLineFlagsToConfig(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func applyCommandLineFlagsToConfig(cfg *config.Config) {
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Logging.FilePath = *logFile
	}
	if *targetURL != "" {
		cfg.Proxy.TargetURL = *targetURL
	}
	if *agentProvider != "" {
		cfg.Agent.Provider = *agentProvider
	}
	if *agentBaseURL != "" {
		cfg.Agent.BaseURL = *agentBaseURL
	}
	if *agentModel != "" {
		cfg.Agent.Model = *agentModel
	}
	if *agentIterations > 0 {
		cfg.Agent.MaxIterations = *agentIterations
	}
	if *mcpConfigPath != "" {
		cfg.Agent.MCPConfigFilePath = *mcpConfigPath
	}
	if *scenarioDBPath != "" {
		cfg.Scenario.DBPath = *scenarioDBPath
	}
	if *historyType != "" {
		cfg.History.Type = *historyType
	}
	if *historyDir != "" {
		cfg.History.Dir = *historyDir
	}
	if *historyRetention >= 0 {
		cfg.History.RetentionDays = *historyRetention
	}
}

// Application wires the proxy's components together.
type Application struct {
	lock    *singleton.Lock
	store   *scenario.Store
	sweeper *retention.Sweeper
	server  *proxy.Server
	logger  *logging.Logger
}

func createApp(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger := logging.New(logging.Options{
		Level:    logging.ParseLevel(cfg.Logging.Level),
		FilePath: cfg.Logging.FilePath,
	})
	logging.SetDefaultLogger(logger)

	lock, owner, err := singleton.TryAcquire(cfg.Scenario.DBPath)
	if err != nil {
		return nil, fmt.Errorf("acquire scenario lock: %w", err)
	}
	if !owner {
		return nil, fmt.Errorf("another instance already owns %s", cfg.Scenario.DBPath)
	}

	store, err := scenario.NewStore(cfg.Scenario.DBPath)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("open scenario store: %w", err)
	}

	static := tools.NewRegistry()
	if err := tools.RegisterScenarioTools(static, store); err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}
	if err := tools.RegisterThinkingTool(static); err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}
	if cfg.Agent.MCPConfigFilePath != "" {
		if err := tools.LoadMCPTools(ctx, static, cfg.Agent.MCPConfigFilePath, logger); err != nil {
			logger.Errorf("Loading MCP tools: %v", err)
		}
	}

	provider, err := agent.NewChatProvider(cfg)
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("create agent provider: %w", err)
	}

	var persister *transcript.Persister
	if cfg.History.Type != model.HistoryNone {
		if err := os.MkdirAll(cfg.History.Dir, 0o755); err != nil {
			logger.Errorf("Creating history directory: %v", err)
		}
		persister = transcript.NewPersister(cfg.History.Type, cfg.History.Dir, logger)
	}

	updater := proxy.NewUpdater(cfg.Agent, provider, store, static, persister, logger)

	return &Application{
		lock:    lock,
		store:   store,
		sweeper: retention.NewSweeper(cfg.History, logger),
		server:  proxy.NewServer(cfg, updater, store, logger),
		logger:  logger,
	}, nil
}

// Start launches the retention sweep and the HTTP front end.
func (a *Application) Start(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start retention sweep: %w", err)
	}
	a.logger.Infof("Retention sweep started")

	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.Errorf("Proxy server exited: %v", err)
		}
	}()
	return nil
}

// Stop shuts everything down in reverse start order.
func (a *Application) Stop() error {
	a.sweeper.Stop()
	a.logger.Infof("Retention sweep stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Errorf("Error stopping proxy server: %v", err)
	}
	a.logger.Infof("Proxy server stopped")

	if err := a.store.Close(); err != nil {
		a.logger.Errorf("Error closing scenario store: %v", err)
	}
	if err := a.lock.Release(); err != nil {
		a.logger.Errorf("Error releasing scenario lock: %v", err)
	}
	return nil
}

// waitForShutdown blocks until a termination signal arrives, then stops the
// application with a bounded grace period.
func waitForShutdown(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	<-signalCh
	app.logger.Infof("Received termination signal, shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		if err := app.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		app.logger.Warnf("Shutdown timed out")
	}
}
