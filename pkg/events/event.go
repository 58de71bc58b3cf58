package events

import "time"

// EventType 事件类型
type EventType string

const (
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskClaimed   EventType = "task.claimed"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskRequeued  EventType = "task.requeued"
	EventActionLogged  EventType = "action.logged"
	EventActionDecided EventType = "action.decided"
)

// Event 推送给订阅者的状态变更
type Event struct {
	Type     EventType `json:"type"`
	TaskID   string    `json:"task_id,omitempty"`
	TaskType string    `json:"task_type,omitempty"`
	LogID    string    `json:"log_id,omitempty"`
	Status   string    `json:"status"`
	Time     time.Time `json:"time"`
}

// Notifier 事件发布者，实现不能阻塞调用方
type Notifier interface {
	Publish(event Event)
}

// Nop 丢弃所有事件
type Nop struct{}

// Publish 实现 Notifier
func (Nop) Publish(Event) {}
