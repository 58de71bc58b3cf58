package services

import (
	"context"
	"net/http"
	"time"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
)

// StatusService 系统状态
type StatusService struct {
	logger    zerolog.Logger
	store     store.Store
	registry  *agents.Registry
	startedAt time.Time
	// uptime 主机运行时长（秒）
	uptime func(ctx context.Context) (uint64, error)
}

// NewStatusService 创建状态服务实例
func NewStatusService(logger zerolog.Logger, st store.Store, registry *agents.Registry) *StatusService {
	return &StatusService{
		logger:    logger.With().Str("service", "status").Logger(),
		store:     st,
		registry:  registry,
		startedAt: time.Now().UTC(),
		uptime:    host.UptimeWithContext,
	}
}

// SystemStatus 状态汇总
type SystemStatus struct {
	Tasks      map[types.TaskStatus]int64   `json:"tasks"`
	ActionLogs map[types.ActionStatus]int64 `json:"action_logs"`
	TaskTypes  []types.TaskType             `json:"task_types"`
	StartedAt  time.Time                    `json:"started_at"`
	HostUptime uint64                       `json:"host_uptime,omitempty"`
}

// RegisterHealth 注册无需认证的健康检查
func (s *StatusService) RegisterHealth(r gin.IRouter) {
	r.GET("/healthz", s.HandleHealth)
}

// RegisterRoutes 注册路由
func (s *StatusService) RegisterRoutes(r gin.IRouter) {
	r.GET("/status", s.HandleGetStatus)
}

// GetSystemStatus 获取系统整体状态
func (s *StatusService) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	tasks, err := s.store.CountTasksByStatus(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.CountActionLogsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	status := &SystemStatus{
		Tasks:      tasks,
		ActionLogs: logs,
		TaskTypes:  s.registry.TaskTypes(),
		StartedAt:  s.startedAt,
	}
	if uptime, err := s.uptime(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Host uptime unavailable")
	} else {
		status.HostUptime = uptime
	}
	return status, nil
}

// HandleGetStatus HTTP处理器：获取系统状态
func (s *StatusService) HandleGetStatus(c *gin.Context) {
	status, err := s.GetSystemStatus(c.Request.Context())
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// HandleHealth 存活检查
func (s *StatusService) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
