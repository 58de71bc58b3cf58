package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ai-orchestrator/pkg/types"
)

// memoryTask 附带插入序号，用于 created_at 相同时保持先进先出
type memoryTask struct {
	task *types.Task
	seq  uint64
}

// MemoryStore 内存存储实现
type MemoryStore struct {
	sync.RWMutex
	tasks   map[string]*memoryTask
	logs    map[string]*types.ActionLog
	logSeq  map[string]uint64
	nextSeq uint64
}

// NewMemoryStore 创建内存存储实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]*memoryTask),
		logs:   make(map[string]*types.ActionLog),
		logSeq: make(map[string]uint64),
	}
}

func copyTask(t *types.Task) *types.Task {
	c := *t
	c.ResultPayload = append(types.JSON(nil), t.ResultPayload...)
	return &c
}

func copyLog(l *types.ActionLog) *types.ActionLog {
	c := *l
	c.Payload = append(types.JSON(nil), l.Payload...)
	return &c
}

// CreateTask 创建任务
func (s *MemoryStore) CreateTask(ctx context.Context, task *types.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	s.Lock()
	defer s.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = now()
	}
	task.UpdatedAt = task.CreatedAt
	s.nextSeq++
	s.tasks[task.ID] = &memoryTask{task: copyTask(task), seq: s.nextSeq}
	return nil
}

// GetTask 获取任务
func (s *MemoryStore) GetTask(ctx context.Context, taskID string) (*types.Task, error) {
	s.RLock()
	defer s.RUnlock()

	t, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return copyTask(t.task), nil
}

// sortedTasks 按 created_at, 插入序号升序返回任务，调用方需持锁
func (s *MemoryStore) sortedTasks() []*memoryTask {
	list := make([]*memoryTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.Before(b.task.CreatedAt)
		}
		return a.seq < b.seq
	})
	return list
}

// ListTasks 列出任务，最新的在前
func (s *MemoryStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*types.Task, error) {
	s.RLock()
	defer s.RUnlock()

	sorted := s.sortedTasks()
	result := make([]*types.Task, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		t := sorted[i].task
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && t.TaskType != *filter.Type {
			continue
		}
		result = append(result, copyTask(t))
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*types.Task{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteTask 删除任务
func (s *MemoryStore) DeleteTask(ctx context.Context, taskID string) error {
	s.Lock()
	defer s.Unlock()

	if _, exists := s.tasks[taskID]; !exists {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	delete(s.tasks, taskID)
	return nil
}

// ClaimOldestPending 领取最早的待执行任务
func (s *MemoryStore) ClaimOldestPending(ctx context.Context) (*types.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	for _, t := range s.sortedTasks() {
		if t.task.Status != types.TaskStatusPending {
			continue
		}
		ts := now()
		t.task.Status = types.TaskStatusInProgress
		t.task.StartedAt = &ts
		t.task.UpdatedAt = ts
		return copyTask(t.task), nil
	}
	return nil, nil
}

// UpdateTaskStatus 按迁移表更新任务状态
func (s *MemoryStore) UpdateTaskStatus(ctx context.Context, taskID string, status types.TaskStatus, result types.JSON) (*types.Task, error) {
	s.Lock()
	defer s.Unlock()

	t, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if !types.CanTransitionTask(t.task.Status, status) {
		return nil, fmt.Errorf("task %s %s -> %s: %w", taskID, t.task.Status, status, ErrInvalidTransition)
	}

	ts := now()
	t.task.Status = status
	t.task.UpdatedAt = ts
	if result != nil {
		t.task.ResultPayload = append(types.JSON(nil), result...)
	}
	switch {
	case status.Terminal():
		t.task.CompletedAt = &ts
	case status == types.TaskStatusPending:
		t.task.StartedAt = nil
	}
	return copyTask(t.task), nil
}

// RequeueStaleTasks 将领取时间早于 startedBefore 的 IN_PROGRESS 任务重置为 PENDING
func (s *MemoryStore) RequeueStaleTasks(ctx context.Context, startedBefore time.Time) (int, error) {
	s.Lock()
	defer s.Unlock()

	count := 0
	ts := now()
	for _, t := range s.tasks {
		if t.task.Status != types.TaskStatusInProgress || t.task.StartedAt == nil {
			continue
		}
		if t.task.StartedAt.Before(startedBefore) {
			t.task.Status = types.TaskStatusPending
			t.task.StartedAt = nil
			t.task.UpdatedAt = ts
			count++
		}
	}
	return count, nil
}

// CountTasksByStatus 按状态统计任务
func (s *MemoryStore) CountTasksByStatus(ctx context.Context) (map[types.TaskStatus]int64, error) {
	s.RLock()
	defer s.RUnlock()

	counts := make(map[types.TaskStatus]int64)
	for _, t := range s.tasks {
		counts[t.task.Status]++
	}
	return counts, nil
}

// CreateActionLog 创建操作日志
func (s *MemoryStore) CreateActionLog(ctx context.Context, entry *types.ActionLog) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("action log id is required")
	}

	s.Lock()
	defer s.Unlock()

	if _, exists := s.logs[entry.ID]; exists {
		return fmt.Errorf("action log %s already exists", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	s.nextSeq++
	s.logs[entry.ID] = copyLog(entry)
	s.logSeq[entry.ID] = s.nextSeq
	return nil
}

// GetActionLog 获取操作日志
func (s *MemoryStore) GetActionLog(ctx context.Context, logID string) (*types.ActionLog, error) {
	s.RLock()
	defer s.RUnlock()

	l, exists := s.logs[logID]
	if !exists {
		return nil, fmt.Errorf("action log %s: %w", logID, ErrNotFound)
	}
	return copyLog(l), nil
}

// ListActionLogs 列出操作日志，最新的在前
func (s *MemoryStore) ListActionLogs(ctx context.Context, filter ActionLogFilter) ([]*types.ActionLog, error) {
	s.RLock()
	defer s.RUnlock()

	list := make([]*types.ActionLog, 0, len(s.logs))
	for _, l := range s.logs {
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.TaskID != "" && l.TaskID != filter.TaskID {
			continue
		}
		list = append(list, l)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return s.logSeq[a.ID] > s.logSeq[b.ID]
	})

	if len(list) > filter.limit() {
		list = list[:filter.limit()]
	}
	result := make([]*types.ActionLog, len(list))
	for i, l := range list {
		result[i] = copyLog(l)
	}
	return result, nil
}

// DeleteActionLog 删除操作日志
func (s *MemoryStore) DeleteActionLog(ctx context.Context, logID string) error {
	s.Lock()
	defer s.Unlock()

	if _, exists := s.logs[logID]; !exists {
		return fmt.Errorf("action log %s: %w", logID, ErrNotFound)
	}
	delete(s.logs, logID)
	delete(s.logSeq, logID)
	return nil
}

// UpdateActionLogStatus 审批操作日志，只允许从 PENDING_APPROVAL 迁移
func (s *MemoryStore) UpdateActionLogStatus(ctx context.Context, logID string, status types.ActionStatus) (*types.ActionLog, error) {
	s.Lock()
	defer s.Unlock()

	l, exists := s.logs[logID]
	if !exists {
		return nil, fmt.Errorf("action log %s: %w", logID, ErrNotFound)
	}
	if !types.CanTransitionAction(l.Status, status) {
		return nil, fmt.Errorf("action log %s %s -> %s: %w", logID, l.Status, status, ErrInvalidTransition)
	}

	ts := now()
	l.Status = status
	l.DecidedAt = &ts
	return copyLog(l), nil
}

// CountActionLogsByStatus 按状态统计操作日志
func (s *MemoryStore) CountActionLogsByStatus(ctx context.Context) (map[types.ActionStatus]int64, error) {
	s.RLock()
	defer s.RUnlock()

	counts := make(map[types.ActionStatus]int64)
	for _, l := range s.logs {
		counts[l.Status]++
	}
	return counts, nil
}

// Cleanup 清理 before 之前完成的任务
func (s *MemoryStore) Cleanup(ctx context.Context, before time.Time) (int, error) {
	s.Lock()
	defer s.Unlock()

	count := 0
	for id, t := range s.tasks {
		if t.task.Status.Terminal() && t.task.CompletedAt != nil && t.task.CompletedAt.Before(before) {
			delete(s.tasks, id)
			count++
		}
	}
	return count, nil
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	return nil
}
