//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/approval"
	"ai-orchestrator/pkg/events"
	"ai-orchestrator/pkg/server"
	"ai-orchestrator/pkg/server/services"
)

func InitializeApp(configPath ConfigPath) (*App, func(), error) {
	wire.Build(
		// 基础设施
		provideConfig,
		provideLogger,
		provideServiceLogger,
		provideStore,
		provideHub,
		wire.Bind(new(events.Notifier), new(*events.Hub)),

		// 编排
		provideProbe,
		agents.NewDefaultRegistry,
		provideOrchestrator,
		provideScheduler,
		approval.NewGate,

		// HTTP 服务
		provideAuthenticator,
		services.NewAuthService,
		services.NewTaskService,
		services.NewActionLogService,
		services.NewStatusService,
		wire.Struct(new(server.Services), "*"),
		server.New,

		NewApp,
	)
	return nil, nil, nil
}
