package services

import (
	"errors"
	"net/http"

	"ai-orchestrator/pkg/server/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuthService 管理员登录
type AuthService struct {
	logger zerolog.Logger
	auth   *middleware.SessionAuthenticator
}

// NewAuthService 创建登录服务
func NewAuthService(logger zerolog.Logger, auth *middleware.SessionAuthenticator) *AuthService {
	return &AuthService{
		logger: logger.With().Str("service", "auth").Logger(),
		auth:   auth,
	}
}

// RegisterRoutes 注册路由
func (s *AuthService) RegisterRoutes(r gin.IRouter) {
	r.POST("/auth/login", s.HandleLogin)
}

// HandleLogin 处理管理员登录
func (s *AuthService) HandleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	token, session, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, middleware.ErrInvalidCredentials) {
			s.logger.Warn().Str("email", req.Email).Str("ip", c.ClientIP()).Msg("Failed login")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		s.logger.Error().Err(err).Msg("Login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Str("email", session.Email).Msg("Admin logged in")
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"session": session,
	})
}
