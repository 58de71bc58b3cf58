package agents

import (
	"context"
	"errors"

	"ai-orchestrator/pkg/types"
)

// ErrAgentNotFound 任务类型没有对应的代理
var ErrAgentNotFound = errors.New("no agent registered")

// Agent 代理能力接口
// Execute 只在真正异常时返回错误，业务上的失败通过 Result.Success 表达
type Agent interface {
	Name() string
	Description() string
	Execute(ctx context.Context, payload types.JSON) (*Result, error)
}

// Result 代理执行结果
type Result struct {
	Success bool       `json:"success"`
	Action  string     `json:"action"`
	Details types.JSON `json:"details"`
}

// cannedAgent 返回固定结果的代理，不做真正的分析
type cannedAgent struct {
	name         string
	systemPrompt string
	action       string
	details      string
}

func (a *cannedAgent) Name() string        { return a.name }
func (a *cannedAgent) Description() string { return a.systemPrompt }

func (a *cannedAgent) Execute(ctx context.Context, payload types.JSON) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Success: true,
		Action:  a.action,
		Details: types.MustJSON(a.details),
	}, nil
}

// NewFrontendAgent 前端优化代理
func NewFrontendAgent() Agent {
	return &cannedAgent{
		name: "Frontend Agent",
		systemPrompt: "Frontend engineer for Next.js, React and Tailwind CSS. " +
			"Improves component UI/UX, refactors utility classes, fixes accessibility " +
			"and tunes client/server rendering boundaries.",
		action:  "Refactored src/app/page.tsx",
		details: "Removed unused tailwind classes and added semantic HTML tags.",
	}
}

// NewBackendAgent 后端审查代理
func NewBackendAgent() Agent {
	return &cannedAgent{
		name: "Backend Agent",
		systemPrompt: "Backend and database engineer. Reviews server actions for slow " +
			"data fetching, suggests indexes, validates type safety and hardens " +
			"rate limiting and row level security.",
		action:  "Optimized query in actions.ts",
		details: "Added selective .select() to avoid fetching unnecessary columns.",
	}
}

// NewBlogAgent 博客草稿代理
func NewBlogAgent() Agent {
	return &cannedAgent{
		name:         "Blog Agent",
		systemPrompt: "Drafts a weekly blog post from trending technology topics for admin review.",
		action:       "Blog Draft Started",
		details:      "Searching trending tech...",
	}
}
