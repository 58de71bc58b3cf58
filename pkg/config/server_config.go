package config

import (
	"fmt"
	"path/filepath"
	"time"

	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"
)

// ServerConfig 服务端配置
type ServerConfig struct {
	// 服务器配置
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		// ShutdownTimeout 优雅关闭的最长等待时间
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// 日志配置
	Log struct {
		Debug bool   `yaml:"debug"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	// 存储配置
	Storage store.Config `yaml:"storage"`

	// 认证配置
	Auth struct {
		AdminEmail        string        `yaml:"admin_email"`
		AdminPasswordHash string        `yaml:"admin_password_hash"`
		JWTSecret         string        `yaml:"jwt_secret"`
		SessionTTL        time.Duration `yaml:"session_ttl"`
	} `yaml:"auth"`

	// 编排器配置
	Orchestrator struct {
		Enabled      bool          `yaml:"enabled"`
		PollInterval time.Duration `yaml:"poll_interval"`
		AgentTimeout time.Duration `yaml:"agent_timeout"`
		StaleAfter   time.Duration `yaml:"stale_after"`
		Retention    time.Duration `yaml:"retention"`
	} `yaml:"orchestrator"`
}

// LoadServerConfig 加载服务端配置，未设置的字段保留默认值
func LoadServerConfig(path string, workspaceRoot string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := LoadConfig(path, cfg); err != nil {
		return nil, err
	}

	cfg.resolveRelativePaths(workspaceRoot)
	return cfg, nil
}

// Validate 实现Config接口
func (c *ServerConfig) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.DBName == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.dbname are required")
		}
	case "":
		return fmt.Errorf("storage.type is required")
	default:
		return fmt.Errorf("unknown storage.type: %s", c.Storage.Type)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set %s)", EnvJWTSecret)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("invalid auth.session_ttl: %s", c.Auth.SessionTTL)
	}
	if c.Orchestrator.PollInterval <= 0 {
		return fmt.Errorf("invalid orchestrator.poll_interval: %s", c.Orchestrator.PollInterval)
	}
	if c.Orchestrator.AgentTimeout < 0 || c.Orchestrator.StaleAfter < 0 || c.Orchestrator.Retention < 0 {
		return fmt.Errorf("orchestrator durations must not be negative")
	}
	if c.Orchestrator.StaleAfter > 0 && c.Orchestrator.AgentTimeout == 0 {
		return fmt.Errorf("orchestrator.stale_after requires a bounded orchestrator.agent_timeout")
	}
	if c.Orchestrator.StaleAfter > 0 && c.Orchestrator.StaleAfter <= c.Orchestrator.AgentTimeout {
		return fmt.Errorf("orchestrator.stale_after (%s) must exceed orchestrator.agent_timeout (%s)",
			c.Orchestrator.StaleAfter, c.Orchestrator.AgentTimeout)
	}
	return nil
}

// applyEnv 环境变量覆盖密钥
func (c *ServerConfig) applyEnv() {
	lookupEnv(EnvAdminEmail, &c.Auth.AdminEmail)
	lookupEnv(EnvAdminPasswordHash, &c.Auth.AdminPasswordHash)
	lookupEnv(EnvJWTSecret, &c.Auth.JWTSecret)
	lookupEnv(EnvPostgresPassword, &c.Storage.Postgres.Password)
}

// Admin 管理员凭据
func (c *ServerConfig) Admin() types.Admin {
	return types.Admin{
		Email:        c.Auth.AdminEmail,
		PasswordHash: c.Auth.AdminPasswordHash,
	}
}

// Address 监听地址
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// resolveRelativePaths 处理相对路径
func (c *ServerConfig) resolveRelativePaths(baseDir string) {
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		c.Log.File = filepath.Join(baseDir, c.Log.File)
	}

	if c.Storage.Type == "sqlite" && !filepath.IsAbs(c.Storage.SQLite.Path) {
		c.Storage.SQLite.Path = filepath.Join(baseDir, c.Storage.SQLite.Path)
	}
}

// DefaultServerConfig 返回默认服务端配置
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Log.Debug = false
	cfg.Log.File = "data/ai-orchestrator.log"

	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLite.Path = "data/orchestrator.db"
	cfg.Storage.Postgres.Port = 5432
	cfg.Storage.Postgres.SSLMode = "disable"

	cfg.Auth.SessionTTL = 8 * time.Hour

	cfg.Orchestrator.Enabled = true
	cfg.Orchestrator.PollInterval = 30 * time.Second
	cfg.Orchestrator.AgentTimeout = 2 * time.Minute
	cfg.Orchestrator.StaleAfter = 15 * time.Minute
	cfg.Orchestrator.Retention = 30 * 24 * time.Hour

	return cfg
}
