package types

import "time"

// ActionStatus 定义代理操作日志状态
type ActionStatus string

const (
	ActionStatusPendingApproval ActionStatus = "PENDING_APPROVAL" // 等待人工审批
	ActionStatusApproved        ActionStatus = "APPROVED"         // 已批准
	ActionStatusRejected        ActionStatus = "REJECTED"         // 已拒绝
	ActionStatusExecuted        ActionStatus = "EXECUTED"         // 无需审批，已执行
	ActionStatusCompleted       ActionStatus = "COMPLETED"        // 已完成
	ActionStatusFailed          ActionStatus = "FAILED"           // 后续执行失败
)

// Valid 检查状态是否合法
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusPendingApproval, ActionStatusApproved, ActionStatusRejected,
		ActionStatusExecuted, ActionStatusCompleted, ActionStatusFailed:
		return true
	}
	return false
}

// IsDecision 是否为审批结果
func (s ActionStatus) IsDecision() bool {
	return s == ActionStatusApproved || s == ActionStatusRejected
}

// CanTransitionAction 只有 PENDING_APPROVAL 可以迁移，且只能迁移到 APPROVED 或 REJECTED
func CanTransitionAction(from, to ActionStatus) bool {
	return from == ActionStatusPendingApproval && to.IsDecision()
}

// ActionLog 代理操作审计记录
type ActionLog struct {
	ID         string       `json:"id" gorm:"primaryKey;size:36"`
	TaskID     string       `json:"task_id,omitempty" gorm:"size:36;index"`
	AgentName  string       `json:"agent_name" gorm:"size:128;not null"`
	ActionType string       `json:"action_type" gorm:"size:255;not null"`
	Payload    JSON         `json:"payload" gorm:"type:text"`
	Status     ActionStatus `json:"status" gorm:"size:32;not null;index"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;index"`
	ExecutedAt *time.Time   `json:"executed_at"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
}

// TableName 表名
func (ActionLog) TableName() string {
	return "action_logs"
}
