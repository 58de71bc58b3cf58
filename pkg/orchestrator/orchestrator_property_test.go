package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"
)

var propertyTaskTypes = []types.TaskType{
	types.TaskTypeFrontendOptimization,
	types.TaskTypeBackendReview,
	types.TaskTypeNightlyLint,
	types.TaskTypeWeeklyBlog,
	"UNKNOWN_TYPE",
	"LEGACY_REPORT",
}

// TestPropertyEveryClaimedTaskTerminates 每个被领取的任务都到达终止状态，按提交顺序处理，且日志数量与代理类别一致
func TestPropertyEveryClaimedTaskTerminates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		st := store.NewMemoryStore()
		registry := agents.NewDefaultRegistry(nil)
		o := New(st, registry, nil, Options{}, zerolog.Nop())

		n := rapid.IntRange(1, 15).Draw(rt, "num_tasks")
		submitted := make([]*types.Task, 0, n)
		for i := 0; i < n; i++ {
			taskType := rapid.SampledFrom(propertyTaskTypes).Draw(rt, fmt.Sprintf("task_type_%d", i))
			task, err := o.Submit(ctx, taskType, nil)
			if err != nil {
				rt.Fatalf("submit: %v", err)
			}
			submitted = append(submitted, task)
		}

		var processed []string
		for {
			outcome, err := o.Tick(ctx)
			if err != nil {
				rt.Fatalf("tick: %v", err)
			}
			if !outcome.Claimed {
				break
			}
			processed = append(processed, outcome.Task.ID)
		}

		if len(processed) != n {
			rt.Fatalf("processed %d tasks, submitted %d", len(processed), n)
		}

		wantGated, wantExecuted := 0, 0
		for i, task := range submitted {
			if processed[i] != task.ID {
				rt.Fatalf("tick %d processed %s, want %s", i, processed[i], task.ID)
			}

			stored, err := st.GetTask(ctx, task.ID)
			if err != nil {
				rt.Fatalf("get task: %v", err)
			}

			entry, err := registry.Resolve(task.TaskType)
			switch {
			case err != nil:
				if stored.Status != types.TaskStatusFailed {
					rt.Fatalf("unregistered %s ended %s", task.TaskType, stored.Status)
				}
			case entry.RequiresApproval:
				wantGated++
				if stored.Status != types.TaskStatusCompleted {
					rt.Fatalf("gated %s ended %s", task.TaskType, stored.Status)
				}
			default:
				wantExecuted++
				if stored.Status != types.TaskStatusCompleted {
					rt.Fatalf("ungated %s ended %s", task.TaskType, stored.Status)
				}
			}
		}

		counts, err := st.CountActionLogsByStatus(ctx)
		if err != nil {
			rt.Fatalf("count logs: %v", err)
		}
		if int(counts[types.ActionStatusPendingApproval]) != wantGated {
			rt.Fatalf("pending approval logs = %d, want %d", counts[types.ActionStatusPendingApproval], wantGated)
		}
		if int(counts[types.ActionStatusExecuted]) != wantExecuted {
			rt.Fatalf("executed logs = %d, want %d", counts[types.ActionStatusExecuted], wantExecuted)
		}
	})
}
