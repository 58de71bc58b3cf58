package cli

import (
	"fmt"
	"os"
	"strings"

	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/store"
)

// defaultConfigPath 未指定 --config 时尝试读取的文件
const defaultConfigPath = "configs/config.yaml"

// loadConfig 读取与服务端相同的配置文件，AIORCH_ 前缀的环境变量优先
func (c *CLI) loadConfig() error {
	defaults := config.DefaultServerConfig()

	v := c.v
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AIORCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.debug", defaults.Log.Debug)
	v.SetDefault("storage.type", defaults.Storage.Type)
	v.SetDefault("storage.sqlite.path", defaults.Storage.SQLite.Path)
	v.SetDefault("storage.sqlite.max_open_conns", 0)
	v.SetDefault("storage.postgres.port", defaults.Storage.Postgres.Port)
	v.SetDefault("storage.postgres.sslmode", defaults.Storage.Postgres.SSLMode)
	v.SetDefault("orchestrator.agent_timeout", defaults.Orchestrator.AgentTimeout)
	v.SetDefault("orchestrator.stale_after", defaults.Orchestrator.StaleAfter)
	v.SetDefault("orchestrator.retention", defaults.Orchestrator.Retention)
	if err := v.BindEnv("storage.postgres.password", "AIORCH_STORAGE_POSTGRES_PASSWORD", config.EnvPostgresPassword); err != nil {
		return fmt.Errorf("binding env: %w", err)
	}

	path := c.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			// 没有配置文件时只用默认值和环境变量
			return nil
		}
		path = defaultConfigPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

func (c *CLI) storeConfig() store.Config {
	return store.Config{
		Type: c.v.GetString("storage.type"),
		SQLite: store.SQLiteConfig{
			Path:         c.v.GetString("storage.sqlite.path"),
			MaxOpenConns: c.v.GetInt("storage.sqlite.max_open_conns"),
		},
		Postgres: store.PostgresConfig{
			Host:     c.v.GetString("storage.postgres.host"),
			Port:     c.v.GetInt("storage.postgres.port"),
			User:     c.v.GetString("storage.postgres.user"),
			Password: c.v.GetString("storage.postgres.password"),
			DBName:   c.v.GetString("storage.postgres.dbname"),
			SSLMode:  c.v.GetString("storage.postgres.sslmode"),
		},
	}
}

func (c *CLI) orchestratorOptions() orchestrator.Options {
	return orchestrator.Options{
		AgentTimeout: c.v.GetDuration("orchestrator.agent_timeout"),
		StaleAfter:   c.v.GetDuration("orchestrator.stale_after"),
		Retention:    c.v.GetDuration("orchestrator.retention"),
	}
}
