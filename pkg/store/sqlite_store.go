package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
)

// SQLiteStore 基于 SQLite 的存储，复用 GORM 实现
type SQLiteStore struct {
	*GormStore
}

// DefaultSQLiteConfig 返回默认的 SQLite 配置
func DefaultSQLiteConfig(path string) *SQLiteConfig {
	return &SQLiteConfig{
		Path:         path,
		MaxOpenConns: 1,
	}
}

// NewSQLiteStore 创建一个新的 SQLite 存储实例
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if dir := filepath.Dir(config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// 事务以 BEGIN IMMEDIATE 开始，先读后写的领取在多连接下不会因升级写锁失败
	dsn := config.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	store, err := NewGormStore(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}

	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db: %w", err)
	}
	// SQLite 只允许一个写者，单连接避免 database is locked
	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)

	return &SQLiteStore{GormStore: store}, nil
}
