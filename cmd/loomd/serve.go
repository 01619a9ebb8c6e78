package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/agents"
	"github.com/loomlabs/loomd/internal/bus"
	"github.com/loomlabs/loomd/internal/catalog"
	"github.com/loomlabs/loomd/internal/config"
	"github.com/loomlabs/loomd/internal/dryrun"
	"github.com/loomlabs/loomd/internal/graph"
	httpserver "github.com/loomlabs/loomd/internal/http"
	"github.com/loomlabs/loomd/internal/learning"
	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/logging"
	"github.com/loomlabs/loomd/internal/memory"
	"github.com/loomlabs/loomd/internal/orchestrator"
	"github.com/loomlabs/loomd/internal/policy"
	"github.com/loomlabs/loomd/internal/validation"
)

// runServe wires every component and blocks until a shutdown signal.
//
// Initialization order:
//  1. Configuration and logger
//  2. NATS connection (optional)
//  3. Shared memory, event bus, language model, graph, catalog, dry-run
//  4. Policy engine, validation gateway, agents, orchestrator, learner
//  5. Config watcher for policy hot-reload
//  6. HTTP server
func runServe(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting loomd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("llm_enabled", cfg.LLM.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.Enabled))

	// NATS backs the event mirror, the SSE stream, and durable memory. All
	// three are optional capabilities.
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
		}
		defer nc.Close()
		logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))
	}

	store, err := memory.NewStore(cfg.Memory, nc, logger)
	if err != nil {
		return fmt.Errorf("initializing shared memory: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	busOpts := []bus.Option{}
	if cfg.Bus.SubscriberTimeout > 0 {
		busOpts = append(busOpts, bus.WithSubscriberTimeout(cfg.Bus.SubscriberTimeout))
	}
	if nc != nil {
		busOpts = append(busOpts, bus.WithMirror(bus.NewNATSMirror(nc)))
	}
	eventBus := bus.New(logger, busOpts...)

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("initializing language model client: %w", err)
	}

	graphProvider, err := graph.NewProvider(cfg.Graph, llmClient, logger)
	if err != nil {
		return fmt.Errorf("initializing knowledge graph: %w", err)
	}

	cat, err := catalog.New(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("loading building-block catalog: %w", err)
	}

	runner := dryrun.NewRunner(cfg.DryRun, logger)

	policyEngine := policy.New(cfg.Policy)
	gateway := validation.NewGateway(policyEngine, cat, llmClient, runner, cfg.Validation, logger)

	orch := orchestrator.New(orchestrator.Options{
		Patterns:  agents.NewPatternAgent(llmClient, store, logger),
		Generator: agents.NewGeneratorAgent(llmClient, cat, logger),
		Validator: agents.NewValidatorAgent(gateway, logger),
		Graph:     graphProvider,
		Bus:       eventBus,
		Memory:    store,
		Config:    cfg.Pipeline,
		Logger:    logger,
	})

	learner := learning.NewLearner(store, logger)
	learner.Attach(eventBus)

	// Policy is the only hot-reloadable section; everything else needs a
	// restart.
	watcher, err := config.NewWatcher(resolvedConfigPath(configPath), func(next *config.Config) {
		policyEngine.Reload(next.Policy)
		logger.Info("policy reloaded",
			zap.Bool("allow_third_party_types", next.Policy.AllowThirdPartyTypes),
			zap.Strings("whitelist_prefixes", next.Policy.WhitelistPrefixes))
	}, logger)
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	var events *httpserver.EventStream
	if nc != nil {
		events = httpserver.NewEventStream(nc, logger)
	}

	srv, err := httpserver.NewServer(orch, learner, events, logger, &httpserver.Config{
		Host: "localhost",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// resolvedConfigPath mirrors the loader's default so the watcher follows the
// same file.
func resolvedConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return configPath
	}
	return filepath.Join(home, ".config", "loomd", "config.yaml")
}
