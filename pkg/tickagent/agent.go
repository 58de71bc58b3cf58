// Package tickagent 远程触发编排器 tick，替代外部 cron
package tickagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/orchestrator"
)

// ErrUnauthorized 会话失效
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotServing 服务端健康检查未通过
var ErrNotServing = errors.New("server is not serving")

// Agent 周期性调用 /api/orchestrator/tick 的远程代理
type Agent struct {
	config *config.AgentConfig
	logger zerolog.Logger

	// gRPC 连接，仅用于健康检查
	conn   *grpc.ClientConn
	health healthpb.HealthClient

	client  *http.Client
	baseURL string

	mu    sync.Mutex
	token string
}

// New 创建代理实例
func New(cfg *config.AgentConfig, logger zerolog.Logger) *Agent {
	return &Agent{
		config:  cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.Runtime.RequestTimeout},
		baseURL: strings.TrimRight(cfg.Server.URL, "/"),
	}
}

// Connect 建立到服务端的 gRPC 连接
func (a *Agent) Connect() error {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultServiceConfig(`{
			"methodConfig": [{
				"name": [{"service": "grpc.health.v1.Health"}],
				"retryPolicy": {
					"MaxAttempts": 5,
					"InitialBackoff": "0.1s",
					"MaxBackoff": "5s",
					"BackoffMultiplier": 2.0,
					"RetryableStatusCodes": ["UNAVAILABLE"]
				}
			}]
		}`),
	}

	conn, err := grpc.NewClient(a.config.Server.GRPCAddress, opts...)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	a.conn = conn
	a.health = healthpb.NewHealthClient(conn)
	return nil
}

// Close 关闭连接
func (a *Agent) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Run 每个周期执行一轮，直到 ctx 取消
func (a *Agent) Run(ctx context.Context) error {
	if a.conn == nil {
		if err := a.Connect(); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(a.config.Runtime.Interval)
	defer ticker.Stop()

	a.logger.Info().
		Str("server", a.baseURL).
		Dur("interval", a.config.Runtime.Interval).
		Msg("Tick agent started")

	// 首次立即执行
	a.runRound(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Tick agent stopped")
			return nil
		case <-ticker.C:
			a.runRound(ctx)
		}
	}
}

func (a *Agent) runRound(ctx context.Context) {
	n, err := a.Round(ctx)
	if err != nil && ctx.Err() == nil {
		a.logger.Error().Err(err).Int("processed", n).Msg("Tick round failed")
		return
	}
	if n > 0 {
		a.logger.Info().Int("processed", n).Msg("Tick round finished")
	}
}

// Round 健康检查通过后连续 tick，直到队列为空或达到 MaxTicks
func (a *Agent) Round(ctx context.Context) (int, error) {
	if err := a.CheckHealth(ctx); err != nil {
		return 0, err
	}

	processed := 0
	for processed < a.config.Runtime.MaxTicks {
		outcome, err := a.tickWithLogin(ctx)
		if err != nil {
			return processed, err
		}
		if !outcome.Claimed {
			break
		}
		processed++

		event := a.logger.Info()
		if outcome.Error != "" {
			event = a.logger.Warn().Str("error", outcome.Error)
		}
		event.
			Str("task_id", outcome.Task.ID).
			Str("task_type", string(outcome.Task.TaskType)).
			Str("status", string(outcome.Task.Status)).
			Msg("Remote tick processed task")
	}
	return processed, nil
}

// CheckHealth 通过 gRPC 健康服务确认服务端可用
func (a *Agent) CheckHealth(ctx context.Context) error {
	if a.health == nil {
		return fmt.Errorf("not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := a.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, resp.Status)
	}
	return nil
}

// tickWithLogin 会话失效时重新登录一次
func (a *Agent) tickWithLogin(ctx context.Context) (*orchestrator.Outcome, error) {
	if a.currentToken() == "" {
		if err := a.Login(ctx); err != nil {
			return nil, err
		}
	}

	outcome, err := a.Tick(ctx)
	if errors.Is(err, ErrUnauthorized) {
		a.logger.Debug().Msg("Session expired, logging in again")
		if err := a.Login(ctx); err != nil {
			return nil, err
		}
		outcome, err = a.Tick(ctx)
	}
	return outcome, err
}

// Login 获取会话令牌
func (a *Agent) Login(ctx context.Context) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": a.config.Auth.Email, "password": a.config.Auth.Password}
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("logging in: empty token")
	}

	a.mu.Lock()
	a.token = resp.Token
	a.mu.Unlock()
	return nil
}

// Tick 触发一次远程 tick
func (a *Agent) Tick(ctx context.Context) (*orchestrator.Outcome, error) {
	var outcome orchestrator.Outcome
	if err := a.do(ctx, http.MethodPost, "/api/orchestrator/tick", a.currentToken(), nil, &outcome); err != nil {
		return nil, fmt.Errorf("ticking: %w", err)
	}
	return &outcome, nil
}

func (a *Agent) currentToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *Agent) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
