package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// 环境变量覆盖，用于不写入配置文件的密钥
const (
	EnvAdminEmail        = "AIORCH_ADMIN_EMAIL"
	EnvAdminPasswordHash = "AIORCH_ADMIN_PASSWORD_HASH"
	EnvJWTSecret         = "AIORCH_JWT_SECRET"
	EnvPostgresPassword  = "AIORCH_POSTGRES_PASSWORD"
	EnvAdminPassword     = "AIORCH_ADMIN_PASSWORD"
)

// Config 通用配置接口
type Config interface {
	Validate() error
}

// envOverrider 支持环境变量覆盖的配置
type envOverrider interface {
	applyEnv()
}

// LoadConfig 从文件加载配置，cfg 中已有的值作为默认值
func LoadConfig(path string, cfg Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if o, ok := cfg.(envOverrider); ok {
		o.applyEnv()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	return nil
}

// lookupEnv 环境变量存在且非空时覆盖 target
func lookupEnv(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}
