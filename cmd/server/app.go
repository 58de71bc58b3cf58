package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/events"
	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/server"
)

// App 组合服务端各组件的生命周期
type App struct {
	config    *config.ServerConfig
	server    *server.Server
	scheduler *orchestrator.Scheduler
	hub       *events.Hub
	logger    zerolog.Logger
}

// NewApp 创建应用
func NewApp(cfg *config.ServerConfig, srv *server.Server, scheduler *orchestrator.Scheduler, hub *events.Hub, logger zerolog.Logger) *App {
	return &App{
		config:    cfg,
		server:    srv,
		scheduler: scheduler,
		hub:       hub,
		logger:    logger.With().Str("component", "app").Logger(),
	}
}

// Run 启动服务直到 ctx 取消，然后优雅关闭
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(runCtx)
	}()

	if err := a.server.Start(); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("starting server: %w", err)
	}

	if a.config.Orchestrator.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scheduler.Run(runCtx)
		}()
	} else {
		a.logger.Info().Msg("Scheduler disabled, ticks only run on demand")
	}

	<-ctx.Done()
	a.logger.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("Error stopping server")
	}

	cancel()
	wg.Wait()
	return nil
}
