package agents

import (
	"fmt"
	"sort"

	"ai-orchestrator/pkg/types"
)

// Entry 注册表中的一项
type Entry struct {
	Agent Agent
	// RequiresApproval 为 true 时操作日志以 PENDING_APPROVAL 写入
	RequiresApproval bool
	// ActionType 非空时覆盖代理上报的 action 作为日志的 action_type
	ActionType string
}

// Registry 任务类型到代理的静态映射，构造完成后只读
type Registry struct {
	entries map[types.TaskType]Entry
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.TaskType]Entry)}
}

// Register 注册代理，重复注册返回错误
func (r *Registry) Register(taskType types.TaskType, entry Entry) error {
	if taskType == "" {
		return fmt.Errorf("task type is required")
	}
	if entry.Agent == nil {
		return fmt.Errorf("agent for %s is nil", taskType)
	}
	if _, exists := r.entries[taskType]; exists {
		return fmt.Errorf("task type %s already registered", taskType)
	}
	r.entries[taskType] = entry
	return nil
}

// MustRegister 注册代理，失败时 panic
func (r *Registry) MustRegister(taskType types.TaskType, entry Entry) *Registry {
	if err := r.Register(taskType, entry); err != nil {
		panic(err)
	}
	return r
}

// Resolve 查找任务类型对应的代理
func (r *Registry) Resolve(taskType types.TaskType) (Entry, error) {
	entry, ok := r.entries[taskType]
	if !ok {
		return Entry{}, fmt.Errorf("%w for %s", ErrAgentNotFound, taskType)
	}
	return entry, nil
}

// TaskTypes 返回已注册的任务类型（排序后）
func (r *Registry) TaskTypes() []types.TaskType {
	list := make([]types.TaskType, 0, len(r.entries))
	for t := range r.entries {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// NewDefaultRegistry 默认注册表
func NewDefaultRegistry(probe Probe) *Registry {
	return NewRegistry().
		MustRegister(types.TaskTypeFrontendOptimization, Entry{Agent: NewFrontendAgent(), RequiresApproval: true}).
		MustRegister(types.TaskTypeBackendReview, Entry{Agent: NewBackendAgent(), RequiresApproval: true}).
		MustRegister(types.TaskTypeNightlyLint, Entry{Agent: NewDevOpsAgent(probe), ActionType: "Nightly CI Healthcheck"}).
		MustRegister(types.TaskTypeWeeklyBlog, Entry{Agent: NewBlogAgent(), RequiresApproval: true})
}
