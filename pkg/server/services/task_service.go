package services

import (
	"net/http"

	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// defaultTaskPage 任务列表默认分页
const defaultTaskPage = 50

// TaskService 任务队列接口
type TaskService struct {
	logger       zerolog.Logger
	store        store.Store
	orchestrator *orchestrator.Orchestrator
}

// NewTaskService 创建任务服务实例
func NewTaskService(logger zerolog.Logger, st store.Store, o *orchestrator.Orchestrator) *TaskService {
	return &TaskService{
		logger:       logger.With().Str("service", "task").Logger(),
		store:        st,
		orchestrator: o,
	}
}

// RegisterRoutes 注册路由
func (s *TaskService) RegisterRoutes(r gin.IRouter) {
	tasks := r.Group("/tasks")
	{
		tasks.GET("", s.HandleListTasks)
		tasks.POST("", s.HandleSubmitTask)
		tasks.GET("/:id", s.HandleGetTask)
		tasks.DELETE("/:id", s.HandleDeleteTask)
		tasks.POST("/:id/requeue", s.HandleRequeueTask)
	}
	r.POST("/orchestrator/tick", s.HandleTick)
}

// HandleListTasks 列出任务
func (s *TaskService) HandleListTasks(c *gin.Context) {
	filter := store.TaskFilter{}

	if raw := c.Query("status"); raw != "" {
		status := types.TaskStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("type"); raw != "" {
		taskType := types.TaskType(raw)
		filter.Type = &taskType
	}

	limit, ok := queryLimit(c, defaultTaskPage)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	offset, ok := queryOffset(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	tasks, err := s.store.ListTasks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// HandleSubmitTask 提交任务
func (s *TaskService) HandleSubmitTask(c *gin.Context) {
	var req struct {
		TaskType string     `json:"task_type" binding:"required"`
		Payload  types.JSON `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	task, err := s.orchestrator.Submit(c.Request.Context(), types.TaskType(req.TaskType), req.Payload)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// HandleGetTask 获取任务
func (s *TaskService) HandleGetTask(c *gin.Context) {
	task, err := s.store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// HandleDeleteTask 删除任务
func (s *TaskService) HandleDeleteTask(c *gin.Context) {
	if err := s.store.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// HandleRequeueTask 将卡住的任务重置为 PENDING
func (s *TaskService) HandleRequeueTask(c *gin.Context) {
	task, err := s.orchestrator.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// HandleTick 立即执行一次 tick
func (s *TaskService) HandleTick(c *gin.Context) {
	outcome, err := s.orchestrator.Tick(c.Request.Context())
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}
