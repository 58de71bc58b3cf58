package services

import (
	"errors"
	"net/http"
	"strconv"

	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxPageSize 列表接口的最大分页
const maxPageSize = 200

// respondError 按错误类型返回状态码
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrTaskTypeRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// queryLimit 解析 limit 参数
func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxPageSize {
		return 0, false
	}
	return n, true
}

// queryOffset 解析 offset 参数
func queryOffset(c *gin.Context) (int, bool) {
	raw := c.Query("offset")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
