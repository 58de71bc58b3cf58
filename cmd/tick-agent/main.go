package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/logger"
	"ai-orchestrator/pkg/tickagent"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "configs/agent.yaml", "配置文件路径")
	version := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	if *version {
		fmt.Printf("tick-agent version %s (built at %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workspaceRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting current directory: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAgentConfig(*configPath, workspaceRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	l := logger.New(logger.Options{Debug: cfg.Log.Debug, File: cfg.Log.File})
	log := l.GetLogger("main")

	agent := tickagent.New(cfg, l.GetLogger("agent"))
	if err := agent.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to server: %v\n", err)
		os.Exit(1)
	}
	defer agent.Close()

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("Agent started successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Agent stopped with error")
		os.Exit(1)
	}
}
