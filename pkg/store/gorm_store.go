package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-orchestrator/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// claimRetries 条件更新被其他进程抢先时的重试次数
const claimRetries = 5

// GormStore 通用GORM存储实现
type GormStore struct {
	db *gorm.DB
	// skipLocked 领取时使用 FOR UPDATE SKIP LOCKED（仅PostgreSQL支持）
	skipLocked bool
}

// NewGormStore 创建GORM存储实例
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return now()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &GormStore{db: db}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	return store, nil
}

// initialize 初始化数据库
func (s *GormStore) initialize() error {
	if err := s.db.AutoMigrate(&types.Task{}, &types.ActionLog{}); err != nil {
		return fmt.Errorf("auto migrating tables: %w", err)
	}
	return nil
}

func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("querying %s: %w", kind, err)
}

// CreateTask 创建任务
func (s *GormStore) CreateTask(ctx context.Context, task *types.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now()
	}
	task.UpdatedAt = task.CreatedAt

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// GetTask 获取任务
func (s *GormStore) GetTask(ctx context.Context, taskID string) (*types.Task, error) {
	var task types.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, wrapNotFound(err, "task", taskID)
	}
	return &task, nil
}

// ListTasks 列出任务，最新的在前
func (s *GormStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*types.Task, error) {
	query := s.db.WithContext(ctx).Model(&types.Task{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("task_type = ?", *filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	tasks := []*types.Task{}
	if err := query.Order("created_at DESC, id DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return tasks, nil
}

// DeleteTask 删除任务
func (s *GormStore) DeleteTask(ctx context.Context, taskID string) error {
	result := s.db.WithContext(ctx).Delete(&types.Task{}, "id = ?", taskID)
	if result.Error != nil {
		return fmt.Errorf("deleting task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// ClaimOldestPending 领取最早的待执行任务
// 先选出候选，再以 status = PENDING 为条件更新；更新0行说明被其他进程抢先，重新选择
func (s *GormStore) ClaimOldestPending(ctx context.Context) (*types.Task, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		var claimed *types.Task
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			query := tx.Where("status = ?", types.TaskStatusPending).
				Order("created_at ASC, id ASC").
				Limit(1)
			if s.skipLocked {
				query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
			}

			var candidates []types.Task
			if err := query.Find(&candidates).Error; err != nil {
				return fmt.Errorf("selecting pending task: %w", err)
			}
			if len(candidates) == 0 {
				return nil
			}

			task := candidates[0]
			ts := now()
			result := tx.Model(&types.Task{}).
				Where("id = ? AND status = ?", task.ID, types.TaskStatusPending).
				Updates(map[string]interface{}{
					"status":     types.TaskStatusInProgress,
					"started_at": ts,
					"updated_at": ts,
				})
			if result.Error != nil {
				return fmt.Errorf("claiming task %s: %w", task.ID, result.Error)
			}
			if result.RowsAffected == 0 {
				return nil
			}

			task.Status = types.TaskStatusInProgress
			task.StartedAt = &ts
			task.UpdatedAt = ts
			claimed = &task
			return nil
		})
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}

		// 没有候选时直接返回；有候选但被抢先时重试
		var pending int64
		if err := s.db.WithContext(ctx).Model(&types.Task{}).
			Where("status = ?", types.TaskStatusPending).
			Count(&pending).Error; err != nil {
			return nil, fmt.Errorf("counting pending tasks: %w", err)
		}
		if pending == 0 {
			return nil, nil
		}
	}
	return nil, nil
}

// UpdateTaskStatus 按迁移表更新任务状态
func (s *GormStore) UpdateTaskStatus(ctx context.Context, taskID string, status types.TaskStatus, result types.JSON) (*types.Task, error) {
	sources := types.TaskSourceStatuses(status)
	if len(sources) == 0 {
		return nil, fmt.Errorf("task %s -> %s: %w", taskID, status, ErrInvalidTransition)
	}

	ts := now()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": ts,
	}
	if result != nil {
		updates["result_payload"] = result
	}
	switch {
	case status.Terminal():
		updates["completed_at"] = ts
	case status == types.TaskStatusPending:
		updates["started_at"] = nil
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&types.Task{}).
		Where("id = ? AND status IN ?", taskID, sources).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("updating task %s: %w", taskID, res.Error)
	}

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("task %s %s -> %s: %w", taskID, task.Status, status, ErrInvalidTransition)
	}
	return task, nil
}

// RequeueStaleTasks 将领取时间早于 startedBefore 的 IN_PROGRESS 任务重置为 PENDING
func (s *GormStore) RequeueStaleTasks(ctx context.Context, startedBefore time.Time) (int, error) {
	res := s.db.WithContext(ctx).Model(&types.Task{}).
		Where("status = ? AND started_at < ?", types.TaskStatusInProgress, startedBefore.UTC()).
		Updates(map[string]interface{}{
			"status":     types.TaskStatusPending,
			"started_at": nil,
			"updated_at": now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("requeueing stale tasks: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

type statusCount struct {
	Status string
	Count  int64
}

// CountTasksByStatus 按状态统计任务
func (s *GormStore) CountTasksByStatus(ctx context.Context) (map[types.TaskStatus]int64, error) {
	var rows []statusCount
	if err := s.db.WithContext(ctx).Model(&types.Task{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}

	counts := make(map[types.TaskStatus]int64, len(rows))
	for _, r := range rows {
		counts[types.TaskStatus(r.Status)] = r.Count
	}
	return counts, nil
}

// CreateActionLog 创建操作日志
func (s *GormStore) CreateActionLog(ctx context.Context, entry *types.ActionLog) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("action log id is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("inserting action log: %w", err)
	}
	return nil
}

// GetActionLog 获取操作日志
func (s *GormStore) GetActionLog(ctx context.Context, logID string) (*types.ActionLog, error) {
	var entry types.ActionLog
	if err := s.db.WithContext(ctx).First(&entry, "id = ?", logID).Error; err != nil {
		return nil, wrapNotFound(err, "action log", logID)
	}
	return &entry, nil
}

// ListActionLogs 列出操作日志，最新的在前
func (s *GormStore) ListActionLogs(ctx context.Context, filter ActionLogFilter) ([]*types.ActionLog, error) {
	query := s.db.WithContext(ctx).Model(&types.ActionLog{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.TaskID != "" {
		query = query.Where("task_id = ?", filter.TaskID)
	}

	entries := []*types.ActionLog{}
	if err := query.Order("created_at DESC, id DESC").Limit(filter.limit()).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("querying action logs: %w", err)
	}
	return entries, nil
}

// DeleteActionLog 删除操作日志
func (s *GormStore) DeleteActionLog(ctx context.Context, logID string) error {
	result := s.db.WithContext(ctx).Delete(&types.ActionLog{}, "id = ?", logID)
	if result.Error != nil {
		return fmt.Errorf("deleting action log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("action log %s: %w", logID, ErrNotFound)
	}
	return nil
}

// UpdateActionLogStatus 审批操作日志，只允许从 PENDING_APPROVAL 迁移
func (s *GormStore) UpdateActionLogStatus(ctx context.Context, logID string, status types.ActionStatus) (*types.ActionLog, error) {
	if !status.IsDecision() {
		return nil, fmt.Errorf("action log %s -> %s: %w", logID, status, ErrInvalidTransition)
	}

	res := s.db.WithContext(ctx).Model(&types.ActionLog{}).
		Where("id = ? AND status = ?", logID, types.ActionStatusPendingApproval).
		Updates(map[string]interface{}{
			"status":     status,
			"decided_at": now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("updating action log %s: %w", logID, res.Error)
	}

	entry, err := s.GetActionLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("action log %s %s -> %s: %w", logID, entry.Status, status, ErrInvalidTransition)
	}
	return entry, nil
}

// CountActionLogsByStatus 按状态统计操作日志
func (s *GormStore) CountActionLogsByStatus(ctx context.Context) (map[types.ActionStatus]int64, error) {
	var rows []statusCount
	if err := s.db.WithContext(ctx).Model(&types.ActionLog{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting action logs: %w", err)
	}

	counts := make(map[types.ActionStatus]int64, len(rows))
	for _, r := range rows {
		counts[types.ActionStatus(r.Status)] = r.Count
	}
	return counts, nil
}

// Cleanup 清理 before 之前完成的任务
func (s *GormStore) Cleanup(ctx context.Context, before time.Time) (int, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?",
			[]types.TaskStatus{types.TaskStatusCompleted, types.TaskStatusFailed}, before.UTC()).
		Delete(&types.Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting tasks: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql db: %w", err)
	}
	return sqlDB.Close()
}
