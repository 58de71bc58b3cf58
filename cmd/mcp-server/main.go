package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/logger"
	"ai-orchestrator/pkg/mcp"
	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	cfg, err := config.LoadServerConfig(configPath, root)
	if err != nil {
		return err
	}

	// stdout 留给 MCP 协议
	l := logger.New(logger.Options{Debug: cfg.Log.Debug, File: cfg.Log.File, Console: os.Stderr})
	log := l.GetLogger("mcp")

	st, err := store.NewStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing store")
		}
	}()

	registry := agents.NewDefaultRegistry(agents.SystemProbe)
	o := orchestrator.New(st, registry, nil, orchestrator.Options{
		AgentTimeout: cfg.Orchestrator.AgentTimeout,
		StaleAfter:   cfg.Orchestrator.StaleAfter,
		Retention:    cfg.Orchestrator.Retention,
	}, l.GetLogger("orchestrator"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcp.NewServer(st, o, log, version).Run(ctx)
}
