package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/events"
	"ai-orchestrator/pkg/logger"
	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/server/middleware"
	"ai-orchestrator/pkg/store"
)

// ConfigPath 配置文件路径
type ConfigPath string

func provideConfig(path ConfigPath) (*config.ServerConfig, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return config.LoadServerConfig(string(path), root)
}

func provideLogger(cfg *config.ServerConfig) *logger.Logger {
	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	return logger.New(logger.Options{Debug: cfg.Log.Debug, File: cfg.Log.File})
}

func provideServiceLogger(l *logger.Logger) zerolog.Logger {
	return l.GetLogger("server")
}

func provideStore(cfg *config.ServerConfig, l *logger.Logger) (store.Store, func(), error) {
	st, err := store.NewStore(&cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("creating store: %w", err)
	}
	log := l.GetLogger("store")
	log.Info().Str("type", cfg.Storage.Type).Msg("Store opened")

	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing store")
		}
	}
	return st, cleanup, nil
}

func provideProbe() agents.Probe {
	return agents.SystemProbe
}

func provideHub(l *logger.Logger) *events.Hub {
	return events.NewHub(l.GetLogger("events"))
}

func provideOrchestrator(cfg *config.ServerConfig, st store.Store, registry *agents.Registry, notifier events.Notifier, l *logger.Logger) *orchestrator.Orchestrator {
	return orchestrator.New(st, registry, notifier, orchestrator.Options{
		AgentTimeout: cfg.Orchestrator.AgentTimeout,
		StaleAfter:   cfg.Orchestrator.StaleAfter,
		Retention:    cfg.Orchestrator.Retention,
	}, l.GetLogger("orchestrator"))
}

func provideScheduler(cfg *config.ServerConfig, o *orchestrator.Orchestrator, l *logger.Logger) *orchestrator.Scheduler {
	return orchestrator.NewScheduler(o, cfg.Orchestrator.PollInterval, l.GetLogger("orchestrator"))
}

func provideAuthenticator(cfg *config.ServerConfig, l *logger.Logger) *middleware.SessionAuthenticator {
	log := l.GetLogger("auth")
	admin := cfg.Admin()
	if admin.Email == "" || admin.PasswordHash == "" {
		log.Warn().Msgf("Admin credentials not configured, set %s and %s", config.EnvAdminEmail, config.EnvAdminPasswordHash)
	}
	return middleware.NewSessionAuthenticator(log, admin, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
}
