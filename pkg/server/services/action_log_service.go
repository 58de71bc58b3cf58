package services

import (
	"net/http"

	"ai-orchestrator/pkg/approval"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ActionLogService 操作日志与审批接口
type ActionLogService struct {
	logger zerolog.Logger
	store  store.Store
	gate   *approval.Gate
}

// NewActionLogService 创建操作日志服务
func NewActionLogService(logger zerolog.Logger, st store.Store, gate *approval.Gate) *ActionLogService {
	return &ActionLogService{
		logger: logger.With().Str("service", "action_log").Logger(),
		store:  st,
		gate:   gate,
	}
}

// RegisterRoutes 注册路由
func (s *ActionLogService) RegisterRoutes(r gin.IRouter) {
	logs := r.Group("/action-logs")
	{
		logs.GET("", s.HandleListActionLogs)
		logs.POST("/:id/approve", s.HandleApprove)
		logs.POST("/:id/reject", s.HandleReject)
		logs.DELETE("/:id", s.HandleDeleteActionLog)
	}
}

// HandleListActionLogs 最近的操作日志，默认50条
func (s *ActionLogService) HandleListActionLogs(c *gin.Context) {
	filter := store.ActionLogFilter{TaskID: c.Query("task_id")}

	if raw := c.Query("status"); raw != "" {
		status := types.ActionStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		filter.Status = &status
	}

	limit, ok := queryLimit(c, store.DefaultActionLogLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	filter.Limit = limit

	logs, err := s.store.ListActionLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action_logs": logs})
}

// HandleApprove 批准操作
func (s *ActionLogService) HandleApprove(c *gin.Context) {
	entry, err := s.gate.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// HandleReject 拒绝操作
func (s *ActionLogService) HandleReject(c *gin.Context) {
	entry, err := s.gate.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// HandleDeleteActionLog 删除操作日志
func (s *ActionLogService) HandleDeleteActionLog(c *gin.Context) {
	if err := s.store.DeleteActionLog(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Action log deleted"})
}
