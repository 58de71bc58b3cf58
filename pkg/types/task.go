package types

import "time"

// TaskType 定义任务类型，开放集合，新类型无需修改代码即可提交
type TaskType string

const (
	TaskTypeFrontendOptimization TaskType = "FRONTEND_OPTIMIZATION" // 前端优化
	TaskTypeBackendReview        TaskType = "BACKEND_REVIEW"        // 后端审查
	TaskTypeNightlyLint          TaskType = "NIGHTLY_LINT"          // 夜间健康检查
	TaskTypeWeeklyBlog           TaskType = "WEEKLY_BLOG"           // 每周博客草稿
)

// TaskStatus 定义任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"     // 等待执行
	TaskStatusInProgress TaskStatus = "IN_PROGRESS" // 正在执行
	TaskStatusCompleted  TaskStatus = "COMPLETED"   // 执行成功
	TaskStatusFailed     TaskStatus = "FAILED"      // 执行失败
)

// Valid 检查状态是否合法
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// Terminal 是否为终止状态
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// taskTransitions 目标状态 -> 允许的来源状态
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusInProgress: {TaskStatusPending},
	TaskStatusCompleted:  {TaskStatusInProgress},
	TaskStatusFailed:     {TaskStatusInProgress},
	TaskStatusPending:    {TaskStatusInProgress},
}

// TaskSourceStatuses 返回可以迁移到 to 的来源状态
func TaskSourceStatuses(to TaskStatus) []TaskStatus {
	return taskTransitions[to]
}

// CanTransitionTask 检查任务状态迁移是否合法
func CanTransitionTask(from, to TaskStatus) bool {
	for _, s := range taskTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Task 定义任务结构
// ResultPayload 初始为输入负载，任务结束后被结果或错误描述覆盖
type Task struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	TaskType      TaskType   `json:"task_type" gorm:"size:64;not null;index"`
	Status        TaskStatus `json:"status" gorm:"size:16;not null;index:idx_tasks_claim,priority:1"`
	ResultPayload JSON       `json:"result_payload" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null;index:idx_tasks_claim,priority:2"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName 表名
func (Task) TableName() string {
	return "tasks"
}

// TaskError 任务失败时写入 result_payload 的结构
type TaskError struct {
	Error string `json:"error"`
}
