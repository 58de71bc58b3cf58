package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// cleanupInterval 清理过期任务的周期
const cleanupInterval = time.Hour

// Scheduler 定时触发 tick
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       zerolog.Logger
}

// NewScheduler 创建调度器
func NewScheduler(o *Orchestrator, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		orchestrator: o,
		interval:     interval,
		logger:       logger.With().Str("service", "scheduler").Logger(),
	}
}

// Run 周期运行直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lastCleanup := time.Now()
	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")

	// 启动时立即执行一次
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
			if time.Since(lastCleanup) >= cleanupInterval {
				if _, err := s.orchestrator.Cleanup(ctx); err != nil {
					s.logger.Error().Err(err).Msg("Cleanup failed")
				}
				lastCleanup = time.Now()
			}
		}
	}
}

// runOnce 回收卡死任务后执行一次 tick
func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.orchestrator.RequeueStale(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Stale task recovery failed")
	}
	if _, err := s.orchestrator.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Tick failed")
	}
}
