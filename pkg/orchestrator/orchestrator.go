package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/events"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrTimeout 代理执行超时
	ErrTimeout = errors.New("agent execution timed out")
	// ErrTaskTypeRequired 提交任务时缺少类型
	ErrTaskTypeRequired = errors.New("task type is required")
	// ErrActionRequired 登记操作时缺少代理名或操作类型
	ErrActionRequired = errors.New("agent name and action type are required")
)

// Options 编排器参数
type Options struct {
	// AgentTimeout 单次代理执行的上限，0 表示不限制
	AgentTimeout time.Duration
	// StaleAfter IN_PROGRESS 超过该时长视为卡死，0 表示不自动回收
	StaleAfter time.Duration
	// Retention 终止状态任务的保留时长，0 表示不清理
	Retention time.Duration
}

// Outcome 一次 tick 的结果
type Outcome struct {
	Claimed   bool             `json:"claimed"`
	Task      *types.Task      `json:"task,omitempty"`
	ActionLog *types.ActionLog `json:"action_log,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Orchestrator 每次 tick 驱动一个任务走完生命周期
type Orchestrator struct {
	store    store.Store
	registry *agents.Registry
	notifier events.Notifier
	logger   zerolog.Logger
	opts     Options

	// tickMu 串行化同一进程内的 tick 与卡死回收
	tickMu sync.Mutex
}

// New 创建编排器
func New(st store.Store, registry *agents.Registry, notifier events.Notifier, opts Options, logger zerolog.Logger) *Orchestrator {
	if notifier == nil {
		notifier = events.Nop{}
	}
	o := &Orchestrator{
		store:    st,
		registry: registry,
		notifier: notifier,
		logger:   logger.With().Str("service", "orchestrator").Logger(),
		opts:     opts,
	}
	// 代理执行不限时的情况下，无法区分卡死与仍在运行的任务
	if opts.StaleAfter > 0 && opts.AgentTimeout <= 0 {
		o.logger.Warn().
			Dur("stale_after", opts.StaleAfter).
			Msg("Stale task recovery disabled because agent_timeout is unbounded")
		o.opts.StaleAfter = 0
	}
	return o
}

// Submit 提交新任务，不校验任务类型是否已注册
func (o *Orchestrator) Submit(ctx context.Context, taskType types.TaskType, payload types.JSON) (*types.Task, error) {
	if taskType == "" {
		return nil, ErrTaskTypeRequired
	}
	if payload.IsEmpty() {
		payload = types.EmptyObject()
	}

	task := &types.Task{
		ID:            uuid.NewString(),
		TaskType:      taskType,
		Status:        types.TaskStatusPending,
		ResultPayload: payload,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("submitting task: %w", err)
	}

	o.logger.Info().Str("task_id", task.ID).Str("task_type", string(taskType)).Msg("Task submitted")
	o.publishTask(events.EventTaskSubmitted, task)
	return task, nil
}

// Tick 领取并处理最早的待执行任务
// 单个任务的失败记录在任务上，不作为错误返回；只有存储故障才返回错误
func (o *Orchestrator) Tick(ctx context.Context) (*Outcome, error) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	task, err := o.store.ClaimOldestPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("claiming task: %w", err)
	}
	if task == nil {
		o.logger.Debug().Msg("No pending tasks")
		return &Outcome{Claimed: false}, nil
	}

	logger := o.logger.With().Str("task_id", task.ID).Str("task_type", string(task.TaskType)).Logger()
	logger.Info().Msg("Picked up task")
	o.publishTask(events.EventTaskClaimed, task)

	// 任务已领取，后续写入不受调用方取消影响，保证任务到达终止状态
	writeCtx := context.WithoutCancel(ctx)

	entry, err := o.registry.Resolve(task.TaskType)
	if err != nil {
		return o.fail(writeCtx, logger, task, fmt.Sprintf("Orchestrator has no mapped Agent for %s", task.TaskType))
	}

	result, err := o.execute(ctx, entry.Agent, task.ResultPayload)
	if err != nil {
		return o.fail(writeCtx, logger, task, err.Error())
	}
	if !result.Success {
		return o.fail(writeCtx, logger, task, fmt.Sprintf("agent %s reported failure: %s", entry.Agent.Name(), result.Action))
	}

	actionLog := buildActionLog(task, entry, result)
	if err := o.store.CreateActionLog(writeCtx, actionLog); err != nil {
		logger.Error().Err(err).Msg("Failed to record action log")
		return o.fail(writeCtx, logger, task, fmt.Sprintf("recording action log: %v", err))
	}
	o.notifier.Publish(events.Event{
		Type:     events.EventActionLogged,
		TaskID:   task.ID,
		TaskType: string(task.TaskType),
		LogID:    actionLog.ID,
		Status:   string(actionLog.Status),
	})

	resultPayload, err := types.NewJSON(result)
	if err != nil {
		return o.fail(writeCtx, logger, task, err.Error())
	}
	completed, err := o.store.UpdateTaskStatus(writeCtx, task.ID, types.TaskStatusCompleted, resultPayload)
	if err != nil {
		return nil, fmt.Errorf("completing task %s: %w", task.ID, err)
	}

	logger.Info().
		Str("agent", entry.Agent.Name()).
		Str("log_id", actionLog.ID).
		Str("log_status", string(actionLog.Status)).
		Msg("Task handled successfully")
	o.publishTask(events.EventTaskCompleted, completed)

	return &Outcome{Claimed: true, Task: completed, ActionLog: actionLog}, nil
}

// fail 将任务标记为 FAILED，写入失败时返回错误
func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, task *types.Task, message string) (*Outcome, error) {
	logger.Error().Str("error", message).Msg("Task failed")

	failed, err := o.store.UpdateTaskStatus(ctx, task.ID, types.TaskStatusFailed, types.MustJSON(types.TaskError{Error: message}))
	if err != nil {
		return nil, fmt.Errorf("failing task %s: %w", task.ID, err)
	}

	o.publishTask(events.EventTaskFailed, failed)
	return &Outcome{Claimed: true, Task: failed, Error: message}, nil
}

// execute 在超时限制内运行代理，panic 视为执行失败
func (o *Orchestrator) execute(ctx context.Context, agent agents.Agent, payload types.JSON) (*agents.Result, error) {
	if o.opts.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.AgentTimeout)
		defer cancel()
	}

	type execResult struct {
		result *agents.Result
		err    error
	}
	done := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("agent %s panicked: %v", agent.Name(), r)}
			}
		}()
		result, err := agent.Execute(ctx, payload)
		done <- execResult{result: result, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.result == nil {
			return nil, fmt.Errorf("agent %s returned no result", agent.Name())
		}
		return r.result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, o.opts.AgentTimeout)
		}
		return nil, ctx.Err()
	}
}

// buildActionLog 根据代理类别构造操作日志，初始状态只有 PENDING_APPROVAL 或 EXECUTED
func buildActionLog(task *types.Task, entry agents.Entry, result *agents.Result) *types.ActionLog {
	actionType := result.Action
	if entry.ActionType != "" {
		actionType = entry.ActionType
	}

	log := &types.ActionLog{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		AgentName:  entry.Agent.Name(),
		ActionType: actionType,
		Payload:    result.Details,
		CreatedAt:  time.Now().UTC(),
	}

	if entry.RequiresApproval {
		log.Status = types.ActionStatusPendingApproval
	} else {
		executedAt := log.CreatedAt
		log.Status = types.ActionStatusExecuted
		log.ExecutedAt = &executedAt
	}
	return log
}

// StageAction 在任务流程之外登记一条待审批的操作记录，例如 AI 助手暂存的博客草稿
func (o *Orchestrator) StageAction(ctx context.Context, agentName, actionType string, payload types.JSON) (*types.ActionLog, error) {
	if agentName == "" || actionType == "" {
		return nil, ErrActionRequired
	}
	if payload.IsEmpty() {
		payload = types.EmptyObject()
	}

	entry := &types.ActionLog{
		ID:         uuid.NewString(),
		AgentName:  agentName,
		ActionType: actionType,
		Payload:    payload,
		Status:     types.ActionStatusPendingApproval,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.CreateActionLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("staging action: %w", err)
	}

	o.logger.Info().Str("log_id", entry.ID).Str("agent", agentName).Str("action_type", actionType).Msg("Action staged for approval")
	o.notifier.Publish(events.Event{
		Type:   events.EventActionLogged,
		LogID:  entry.ID,
		Status: string(entry.Status),
	})
	return entry, nil
}

// Requeue 手动将卡住的 IN_PROGRESS 任务重置为 PENDING
func (o *Orchestrator) Requeue(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := o.store.UpdateTaskStatus(ctx, taskID, types.TaskStatusPending, nil)
	if err != nil {
		return nil, fmt.Errorf("requeueing task: %w", err)
	}

	o.logger.Warn().Str("task_id", taskID).Msg("Task requeued by operator")
	o.publishTask(events.EventTaskRequeued, task)
	return task, nil
}

// RequeueStale 回收领取后超过 StaleAfter 仍未结束的任务
func (o *Orchestrator) RequeueStale(ctx context.Context) (int, error) {
	if o.opts.StaleAfter <= 0 {
		return 0, nil
	}

	// 等待进行中的 tick 结束，本进程领取的任务不会被回收
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	count, err := o.store.RequeueStaleTasks(ctx, time.Now().UTC().Add(-o.opts.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("requeueing stale tasks: %w", err)
	}
	if count > 0 {
		o.logger.Warn().Int("count", count).Dur("stale_after", o.opts.StaleAfter).Msg("Requeued stale tasks")
		o.notifier.Publish(events.Event{Type: events.EventTaskRequeued, Status: string(types.TaskStatusPending)})
	}
	return count, nil
}

// Cleanup 删除超过保留期的终止任务
func (o *Orchestrator) Cleanup(ctx context.Context) (int, error) {
	if o.opts.Retention <= 0 {
		return 0, nil
	}

	count, err := o.store.Cleanup(ctx, time.Now().UTC().Add(-o.opts.Retention))
	if err != nil {
		return 0, fmt.Errorf("cleaning up tasks: %w", err)
	}
	if count > 0 {
		o.logger.Info().Int("count", count).Msg("Removed expired tasks")
	}
	return count, nil
}

func (o *Orchestrator) publishTask(eventType events.EventType, task *types.Task) {
	o.notifier.Publish(events.Event{
		Type:     eventType,
		TaskID:   task.ID,
		TaskType: string(task.TaskType),
		Status:   string(task.Status),
	})
}
