package approval

import (
	"context"
	"fmt"

	"ai-orchestrator/pkg/events"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"

	"github.com/rs/zerolog"
)

// Gate 审批待确认的代理操作，只修改日志状态，不影响任务，也不执行操作本身
type Gate struct {
	store    store.Store
	notifier events.Notifier
	logger   zerolog.Logger
}

// NewGate 创建审批入口
func NewGate(st store.Store, notifier events.Notifier, logger zerolog.Logger) *Gate {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &Gate{
		store:    st,
		notifier: notifier,
		logger:   logger.With().Str("service", "approval").Logger(),
	}
}

// Approve 批准操作
func (g *Gate) Approve(ctx context.Context, logID string) (*types.ActionLog, error) {
	return g.decide(ctx, logID, types.ActionStatusApproved)
}

// Reject 拒绝操作
func (g *Gate) Reject(ctx context.Context, logID string) (*types.ActionLog, error) {
	return g.decide(ctx, logID, types.ActionStatusRejected)
}

func (g *Gate) decide(ctx context.Context, logID string, status types.ActionStatus) (*types.ActionLog, error) {
	entry, err := g.store.UpdateActionLogStatus(ctx, logID, status)
	if err != nil {
		g.logger.Warn().Err(err).Str("log_id", logID).Str("decision", string(status)).Msg("Decision refused")
		return nil, fmt.Errorf("deciding action log: %w", err)
	}

	g.logger.Info().
		Str("log_id", entry.ID).
		Str("agent", entry.AgentName).
		Str("decision", string(status)).
		Msg("Action decided")
	g.notifier.Publish(events.Event{
		Type:   events.EventActionDecided,
		TaskID: entry.TaskID,
		LogID:  entry.ID,
		Status: string(entry.Status),
	})
	return entry, nil
}
