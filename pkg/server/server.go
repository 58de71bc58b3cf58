package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/events"
	"ai-orchestrator/pkg/server/middleware"
	"ai-orchestrator/pkg/server/services"
)

// Services 需要挂载的 HTTP 服务
type Services struct {
	Auth       *services.AuthService
	Tasks      *services.TaskService
	ActionLogs *services.ActionLogService
	Status     *services.StatusService
}

// Server 服务器结构
type Server struct {
	config *config.ServerConfig
	logger zerolog.Logger

	engine *gin.Engine
	health *health.Server

	// 服务器实例
	listener   net.Listener
	mux        cmux.CMux
	grpcServer *grpc.Server
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New 创建服务器实例
func New(cfg *config.ServerConfig, logger zerolog.Logger, auth *middleware.SessionAuthenticator, hub *events.Hub, svc Services) *Server {
	logger = logger.With().Str("component", "server").Logger()

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogger(logger))

	svc.Status.RegisterHealth(engine)

	api := engine.Group("/api")
	svc.Auth.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(auth.RequireSession())
	svc.Tasks.RegisterRoutes(protected)
	svc.ActionLogs.RegisterRoutes(protected)
	svc.Status.RegisterRoutes(protected)
	protected.GET("/events", gin.WrapF(hub.ServeWS))

	// gRPC 只提供健康检查与反射
	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Second,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  5 * time.Second,
			Timeout:               1 * time.Second,
		}),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{
		config:     cfg,
		logger:     logger,
		engine:     engine,
		health:     healthServer,
		grpcServer: grpcServer,
		httpServer: &http.Server{
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Addr 实际监听地址，启动前为 nil
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start 启动服务器
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}
	s.listener = listener
	s.mux = cmux.New(listener)

	// 设置 gRPC 匹配器
	grpcL := s.mux.MatchWithWriters(
		cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"),
	)
	// 其余流量交给 HTTP
	httpL := s.mux.Match(cmux.Any())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.grpcServer.Serve(grpcL); err != nil && !errors.Is(err, cmux.ErrListenerClosed) {
			s.logger.Error().Err(err).Msg("gRPC server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug().Err(err).Msg("cmux stopped")
		}
	}()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Server started")
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	s.health.Shutdown()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug().Err(err).Msg("Error closing listener")
	}

	s.wg.Wait()
	s.logger.Info().Msg("Server stopped")
	return nil
}
