package store

import (
	"fmt"

	"gorm.io/driver/postgres"
)

// PostgreStore PostgreSQL存储实现，领取任务时使用 SKIP LOCKED
type PostgreStore struct {
	*GormStore
}

// DSN 拼接连接字符串
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, port, sslMode)
}

// NewPostgreStore 创建PostgreSQL存储实例
func NewPostgreStore(config PostgresConfig) (*PostgreStore, error) {
	if config.Host == "" || config.DBName == "" {
		return nil, fmt.Errorf("postgres host and dbname are required")
	}

	store, err := NewGormStore(postgres.Open(config.DSN()))
	if err != nil {
		return nil, err
	}
	store.skipLocked = true

	return &PostgreStore{GormStore: store}, nil
}
