package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hayahq/haya/internal/agent"
	"github.com/hayahq/haya/internal/agent/providers"
	"github.com/hayahq/haya/internal/channels"
	"github.com/hayahq/haya/internal/config"
	"github.com/hayahq/haya/internal/cron"
	"github.com/hayahq/haya/internal/gateway"
	"github.com/hayahq/haya/internal/memory"
	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/internal/profile"
	"github.com/hayahq/haya/internal/sessions"
	"github.com/hayahq/haya/internal/tokens"
	"github.com/hayahq/haya/internal/tools"
)

const defaultConfigPath = "haya.yaml"

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Haya gateway",
		Long: `Start the Haya gateway with all configured channels and providers.

The server will:
1. Load and validate configuration
2. Open the session and memory stores
3. Initialize the LLM provider and built-in tools
4. Start configured channel plugins and cron jobs
5. Serve the WebSocket protocol plus /health, /metrics, and /chat

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  haya serve

  # Start with custom config and debug logging
  haya serve --config /etc/haya/haya.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:         level,
		Format:        cfg.Logging.Format,
		RedactSecrets: cfg.Logging.RedactSecrets,
	})
	metrics := observability.NewMetrics()

	tracer, shutdownTracing := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "haya",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir := cfg.Gateway.DataDir
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	var store sessions.Store
	if dataDir != "" {
		sqlStore, err := sessions.NewSQLiteStore(filepath.Join(dataDir, "sessions.db"))
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	} else {
		logger.Warn(ctx, "no gateway.dataDir configured, sessions are in-memory only")
		store = sessions.NewMemoryStore()
	}

	counter := tokens.NewSimpleCounter()
	history := sessions.NewManager(store, counter, cfg.Agent.MaxHistoryMessages)

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	registry := agent.NewToolRegistry()
	registry.SetTracer(tracer)
	policy := agent.NewRulePolicyEngine(agent.PolicyAllow)
	registry.SetPolicyEngine(policy)

	var memories *memory.Manager
	if cfg.Memory.Enabled {
		memories, err = buildMemory(ctx, cfg, logger, metrics)
		if err != nil {
			return err
		}
		defer memories.Close()
		if err := registry.Register(tools.NewSaveMemoryTool(memories)); err != nil {
			return err
		}
		if err := registry.Register(tools.NewMemorySearchTool(memories)); err != nil {
			return err
		}
	}
	policy.SeedDefaults(registry.List())

	runtime, err := agent.NewLLMRuntime(agent.RuntimeOptions{
		Provider:     provider,
		Tools:        registry,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       tracer,
		DefaultModel: cfg.Agent.DefaultModel,
		SystemPrompt: cfg.Agent.SystemPrompt,
	})
	if err != nil {
		return err
	}
	summarizer := agent.NewProviderSummarizer(provider, cfg.Agent.DefaultModel)

	channelRegistry := channels.NewRegistry(metrics)
	dock := channels.NewDock(channelRegistry, logger)
	if err := registerChannelPlugins(channelRegistry, cfg, logger); err != nil {
		return err
	}

	var profiles *profile.Store
	if dataDir != "" {
		profiles, err = profile.NewStore(filepath.Join(dataDir, "profiles"))
		if err != nil {
			return fmt.Errorf("open profile store: %w", err)
		}
	}
	channelRegistry.OnMessage(channelBridge(cfg, history, runtime, summarizer, channelRegistry, profiles, counter, logger))

	scheduler := cron.NewScheduler(&cronRunner{runtime: runtime}, logger, metrics)
	for _, job := range cfg.Cron {
		if err := scheduler.AddJob(job); err != nil {
			return fmt.Errorf("cron job %q: %w", job.Name, err)
		}
	}

	server, err := gateway.NewServer(gateway.Options{
		Config:     cfg,
		History:    history,
		Runtime:    runtime,
		Summarizer: summarizer,
		Channels:   channelRegistry,
		Dock:       dock,
		Cron:       scheduler,
		Counter:    counter,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}

	if err := dock.StartAll(ctx); err != nil {
		logger.Warn(ctx, "some channels failed to start", "error", err)
	}
	scheduler.Start()

	go func() {
		if err := config.Watch(ctx, configPath, logger.Slog(), func(next *config.Config) {
			logger.Info(ctx, "configuration changed on disk; most settings apply after restart",
				"path", configPath)
		}); err != nil {
			logger.Warn(ctx, "config watcher stopped", "error", err)
		}
	}()

	logger.Info(ctx, "haya is running", "addr", server.Addr(), "channels", channelRegistry.Size())
	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop()
	_ = dock.StopAll(shutdownCtx)
	return server.Stop(shutdownCtx)
}

// buildProvider selects the runtime provider from the default model name.
// Claude models use Anthropic; everything else goes to OpenAI.
func buildProvider(cfg *config.Config) (agent.Provider, error) {
	model := cfg.Agent.DefaultModel
	envVar := cfg.Agent.DefaultProviderAPIKeyEnvVar

	if strings.HasPrefix(model, "claude") {
		if envVar == "" {
			envVar = "ANTHROPIC_API_KEY"
		}
		key, err := config.RequireEnv(envVar)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		return providers.NewAnthropicProvider(providers.AnthropicOptions{APIKey: key})
	}

	if envVar == "" {
		envVar = "OPENAI_API_KEY"
	}
	key, err := config.RequireEnv(envVar)
	if err != nil {
		return nil, fmt.Errorf("openai provider: %w", err)
	}
	return providers.NewOpenAIProvider(providers.OpenAIOptions{APIKey: key})
}

// buildMemory opens the memory store and wires the embedder when an API key
// is available. Without a key the store still serves lexical search.
func buildMemory(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*memory.Manager, error) {
	dbPath := cfg.Memory.DBPath
	if dbPath == "" && cfg.Gateway.DataDir != "" {
		dbPath = filepath.Join(cfg.Gateway.DataDir, "memory.db")
	}
	db, err := memory.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	index := memory.NewBruteForceIndex(cfg.Memory.Dimension)

	var embedder memory.Embedder
	envVar := cfg.Memory.EmbeddingProviderAPIKeyEnvVar
	if envVar == "" {
		envVar = "OPENAI_API_KEY"
	}
	if key, err := config.RequireEnv(envVar); err != nil {
		logger.Warn(ctx, "no embedding api key, memory search is lexical only", "envVar", envVar)
	} else {
		embedder, err = memory.NewOpenAIEmbedder(memory.EmbedderOptions{
			APIKey:    key,
			Model:     cfg.Memory.EmbeddingModel,
			Dimension: cfg.Memory.Dimension,
		})
		if err != nil {
			return nil, err
		}
	}

	manager := memory.NewManager(db, index, embedder, logger, metrics)
	if err := manager.LoadIndex(ctx); err != nil {
		manager.Close()
		return nil, fmt.Errorf("rebuild vector index: %w", err)
	}
	return manager, nil
}

// cronRunner adapts the agent runtime to the scheduler's runner contract.
// Each job runs as a one-shot turn in a shared cron session.
type cronRunner struct {
	runtime agent.Runtime
}

func (r *cronRunner) Run(ctx context.Context, prompt string) (string, error) {
	result, err := r.runtime.Chat(ctx, agent.ChatRequest{SessionID: "cron", Message: prompt}, nil, nil)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
