package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-orchestrator/pkg/types"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition 状态迁移不合法，或记录已不在预期状态
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DefaultActionLogLimit 操作日志默认分页大小
const DefaultActionLogLimit = 50

// Store 定义存储接口
type Store interface {
	// Task operations
	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, taskID string) (*types.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*types.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	// ClaimOldestPending 原子地领取最早的 PENDING 任务，队列为空时返回 nil, nil
	ClaimOldestPending(ctx context.Context) (*types.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status types.TaskStatus, result types.JSON) (*types.Task, error)
	RequeueStaleTasks(ctx context.Context, startedBefore time.Time) (int, error)
	CountTasksByStatus(ctx context.Context) (map[types.TaskStatus]int64, error)

	// Action log operations
	CreateActionLog(ctx context.Context, entry *types.ActionLog) error
	GetActionLog(ctx context.Context, logID string) (*types.ActionLog, error)
	ListActionLogs(ctx context.Context, filter ActionLogFilter) ([]*types.ActionLog, error)
	DeleteActionLog(ctx context.Context, logID string) error
	UpdateActionLogStatus(ctx context.Context, logID string, status types.ActionStatus) (*types.ActionLog, error)
	CountActionLogsByStatus(ctx context.Context) (map[types.ActionStatus]int64, error)

	// Maintenance
	Cleanup(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// TaskFilter 定义任务过滤条件
type TaskFilter struct {
	Status *types.TaskStatus
	Type   *types.TaskType
	Limit  int
	Offset int
}

// ActionLogFilter 定义操作日志过滤条件
type ActionLogFilter struct {
	Status *types.ActionStatus
	TaskID string
	Limit  int
}

// limit 返回有效分页大小
func (f ActionLogFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultActionLogLimit
	}
	return f.Limit
}

// Config 存储配置
type Config struct {
	Type     string         `yaml:"type"`     // 存储类型：memory, sqlite, postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`   // SQLite配置
	Postgres PostgresConfig `yaml:"postgres"` // PostgreSQL配置
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path         string `yaml:"path"`           // 数据库文件路径
	MaxOpenConns int    `yaml:"max_open_conns"` // 最大打开连接数
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// NewStore 创建存储实例
func NewStore(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(&cfg.SQLite)
	case "postgres":
		return NewPostgreStore(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// now 统一使用UTC时间，精度截断到微秒以便各数据库往返一致
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
