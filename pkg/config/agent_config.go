package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// AgentConfig 远程 tick 代理配置
type AgentConfig struct {
	// 服务器配置
	Server struct {
		// URL HTTP API 地址
		URL string `yaml:"url"`
		// GRPCAddress 健康检查地址，与 HTTP 共用端口
		GRPCAddress string `yaml:"grpc_address"`
	} `yaml:"server"`

	// 管理员凭据，密码建议通过环境变量提供
	Auth struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"auth"`

	// 运行时配置
	Runtime struct {
		// Interval 两轮 tick 之间的间隔
		Interval time.Duration `yaml:"interval"`
		// MaxTicks 每轮最多处理的任务数
		MaxTicks int `yaml:"max_ticks"`
		// RequestTimeout 单次请求超时
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"runtime"`

	Log struct {
		Debug bool   `yaml:"debug"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// LoadAgentConfig 加载代理配置
func LoadAgentConfig(path string, workspaceRoot string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if err := LoadConfig(path, cfg); err != nil {
		return nil, err
	}

	if cfg.Log.File != "" && !filepath.IsAbs(cfg.Log.File) {
		cfg.Log.File = filepath.Join(workspaceRoot, cfg.Log.File)
	}
	return cfg, nil
}

// Validate 实现Config接口
func (c *AgentConfig) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server.url: %q", c.Server.URL)
	}
	if c.Server.GRPCAddress == "" {
		return fmt.Errorf("server.grpc_address is required")
	}
	if c.Auth.Email == "" || c.Auth.Password == "" {
		return fmt.Errorf("auth.email and auth.password are required (or set %s and %s)", EnvAdminEmail, EnvAdminPassword)
	}
	if c.Runtime.Interval <= 0 {
		return fmt.Errorf("invalid runtime.interval: %s", c.Runtime.Interval)
	}
	if c.Runtime.MaxTicks <= 0 {
		return fmt.Errorf("invalid runtime.max_ticks: %d", c.Runtime.MaxTicks)
	}
	if c.Runtime.RequestTimeout <= 0 {
		return fmt.Errorf("invalid runtime.request_timeout: %s", c.Runtime.RequestTimeout)
	}
	return nil
}

func (c *AgentConfig) applyEnv() {
	lookupEnv(EnvAdminEmail, &c.Auth.Email)
	lookupEnv(EnvAdminPassword, &c.Auth.Password)
}

// DefaultAgentConfig 返回默认代理配置
func DefaultAgentConfig() *AgentConfig {
	cfg := &AgentConfig{}
	cfg.Server.URL = "http://127.0.0.1:8080"
	cfg.Server.GRPCAddress = "127.0.0.1:8080"
	cfg.Runtime.Interval = 30 * time.Second
	cfg.Runtime.MaxTicks = 10
	cfg.Runtime.RequestTimeout = 2*time.Minute + 30*time.Second
	return cfg
}
