package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/events"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"
)

// faultyStore 在指定操作上注入错误
type faultyStore struct {
	store.Store
	claimErr     error
	createLogErr error
	completeErr  error
	failErr      error
}

func (s *faultyStore) ClaimOldestPending(ctx context.Context) (*types.Task, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return s.Store.ClaimOldestPending(ctx)
}

func (s *faultyStore) CreateActionLog(ctx context.Context, entry *types.ActionLog) error {
	if s.createLogErr != nil {
		return s.createLogErr
	}
	return s.Store.CreateActionLog(ctx, entry)
}

func (s *faultyStore) UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus, result types.JSON) (*types.Task, error) {
	if status == types.TaskStatusCompleted && s.completeErr != nil {
		return nil, s.completeErr
	}
	if status == types.TaskStatusFailed && s.failErr != nil {
		return nil, s.failErr
	}
	return s.Store.UpdateTaskStatus(ctx, id, status, result)
}

// recorder 记录发布的事件
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) eventTypes() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		list[i] = e.Type
	}
	return list
}

// funcAgent 用函数实现的测试代理
type funcAgent struct {
	name string
	fn   func(ctx context.Context, payload types.JSON) (*agents.Result, error)
}

func (a *funcAgent) Name() string        { return a.name }
func (a *funcAgent) Description() string { return "test agent" }
func (a *funcAgent) Execute(ctx context.Context, payload types.JSON) (*agents.Result, error) {
	return a.fn(ctx, payload)
}

func newTestOrchestrator(st store.Store, registry *agents.Registry) (*Orchestrator, *recorder) {
	if registry == nil {
		registry = agents.NewDefaultRegistry(nil)
	}
	rec := &recorder{}
	return New(st, registry, rec, Options{AgentTimeout: time.Second}, zerolog.Nop()), rec
}

func listLogs(t *testing.T, st store.Store) []*types.ActionLog {
	logs, err := st.ListActionLogs(context.Background(), store.ActionLogFilter{})
	require.NoError(t, err)
	return logs
}

func TestTickScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("BackendReviewIsGated", func(t *testing.T) {
		st := store.NewMemoryStore()
		o, rec := newTestOrchestrator(st, nil)

		task, err := o.Submit(ctx, types.TaskTypeBackendReview, types.EmptyObject())
		require.NoError(t, err)

		outcome, err := o.Tick(ctx)
		require.NoError(t, err)
		require.True(t, outcome.Claimed)
		assert.Equal(t, types.TaskStatusCompleted, outcome.Task.Status)

		logs := listLogs(t, st)
		require.Len(t, logs, 1)
		assert.Equal(t, "Backend Agent", logs[0].AgentName)
		assert.Equal(t, types.ActionStatusPendingApproval, logs[0].Status)
		assert.Equal(t, "Optimized query in actions.ts", logs[0].ActionType)
		assert.Equal(t, task.ID, logs[0].TaskID)
		assert.Nil(t, logs[0].ExecutedAt)

		stored, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		var result agents.Result
		require.NoError(t, stored.ResultPayload.Decode(&result))
		assert.True(t, result.Success)
		assert.Equal(t, "Optimized query in actions.ts", result.Action)

		assert.Equal(t, []events.EventType{
			events.EventTaskSubmitted,
			events.EventTaskClaimed,
			events.EventActionLogged,
			events.EventTaskCompleted,
		}, rec.eventTypes())
	})

	t.Run("NightlyLintIsExecuted", func(t *testing.T) {
		st := store.NewMemoryStore()
		o, _ := newTestOrchestrator(st, nil)

		_, err := o.Submit(ctx, types.TaskTypeNightlyLint, nil)
		require.NoError(t, err)

		outcome, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusCompleted, outcome.Task.Status)

		logs := listLogs(t, st)
		require.Len(t, logs, 1)
		assert.Equal(t, types.ActionStatusExecuted, logs[0].Status)
		assert.Equal(t, "Nightly CI Healthcheck", logs[0].ActionType)
		assert.Equal(t, "DevOps Agent", logs[0].AgentName)
		assert.NotNil(t, logs[0].ExecutedAt)
	})

	t.Run("UnknownTypeFails", func(t *testing.T) {
		st := store.NewMemoryStore()
		o, _ := newTestOrchestrator(st, nil)

		task, err := o.Submit(ctx, "UNKNOWN_TYPE", nil)
		require.NoError(t, err)

		outcome, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusFailed, outcome.Task.Status)

		stored, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		var taskErr types.TaskError
		require.NoError(t, stored.ResultPayload.Decode(&taskErr))
		assert.Equal(t, "Orchestrator has no mapped Agent for UNKNOWN_TYPE", taskErr.Error)
		assert.Empty(t, listLogs(t, st))
	})

	t.Run("OlderTaskFirst", func(t *testing.T) {
		st := store.NewMemoryStore()
		o, _ := newTestOrchestrator(st, nil)

		older, err := o.Submit(ctx, types.TaskTypeFrontendOptimization, nil)
		require.NoError(t, err)
		newer, err := o.Submit(ctx, types.TaskTypeWeeklyBlog, nil)
		require.NoError(t, err)

		first, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, older.ID, first.Task.ID)

		second, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, second.Task.ID)

		third, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.False(t, third.Claimed)

		assert.Len(t, listLogs(t, st), 2)
	})

	t.Run("EmptyQueueIsNoop", func(t *testing.T) {
		o, rec := newTestOrchestrator(store.NewMemoryStore(), nil)
		outcome, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.False(t, outcome.Claimed)
		assert.Empty(t, rec.eventTypes())
	})
}

func TestTickAgentFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		fn      func(ctx context.Context, payload types.JSON) (*agents.Result, error)
		wantErr string
	}{
		{
			name: "Error",
			fn: func(ctx context.Context, payload types.JSON) (*agents.Result, error) {
				return nil, errors.New("lighthouse unreachable")
			},
			wantErr: "lighthouse unreachable",
		},
		{
			name: "Panic",
			fn: func(ctx context.Context, payload types.JSON) (*agents.Result, error) {
				panic("nil map")
			},
			wantErr: "agent Flaky Agent panicked: nil map",
		},
		{
			name: "Timeout",
			fn: func(ctx context.Context, payload types.JSON) (*agents.Result, error) {
				time.Sleep(5 * time.Second)
				return &agents.Result{Success: true}, nil
			},
			wantErr: "agent execution timed out",
		},
		{
			name: "NilResult",
			fn: func(ctx context.Context, payload types.JSON) (*agents.Result, error) {
				return nil, nil
			},
			wantErr: "returned no result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			registry := agents.NewRegistry().MustRegister("FLAKY", agents.Entry{
				Agent:            &funcAgent{name: "Flaky Agent", fn: tt.fn},
				RequiresApproval: true,
			})
			o := New(st, registry, nil, Options{AgentTimeout: 50 * time.Millisecond}, zerolog.Nop())

			task, err := o.Submit(ctx, "FLAKY", nil)
			require.NoError(t, err)

			outcome, err := o.Tick(ctx)
			require.NoError(t, err)
			assert.Equal(t, types.TaskStatusFailed, outcome.Task.Status)
			assert.Contains(t, outcome.Error, tt.wantErr)

			stored, err := st.GetTask(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, types.TaskStatusFailed, stored.Status)
			assert.NotNil(t, stored.CompletedAt)
			assert.Contains(t, stored.ResultPayload.String(), tt.wantErr)
			assert.Empty(t, listLogs(t, st))
		})
	}
}

func TestTickPassesPayloadThrough(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	var seen types.JSON
	registry := agents.NewRegistry().MustRegister("ECHO", agents.Entry{
		Agent: &funcAgent{name: "Echo Agent", fn: func(ctx context.Context, payload types.JSON) (*agents.Result, error) {
			seen = payload
			return &agents.Result{Success: true, Action: "echo", Details: payload}, nil
		}},
	})
	o, _ := newTestOrchestrator(st, registry)

	_, err := o.Submit(ctx, "ECHO", types.JSON(`{"triggered_by":"admin"}`))
	require.NoError(t, err)
	_, err = o.Tick(ctx)
	require.NoError(t, err)

	assert.JSONEq(t, `{"triggered_by":"admin"}`, seen.String())
	logs := listLogs(t, st)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"triggered_by":"admin"}`, logs[0].Payload.String())
	assert.Equal(t, types.ActionStatusExecuted, logs[0].Status)
}

func TestTickUnsuccessfulResult(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	registry := agents.NewRegistry().MustRegister("NOOP", agents.Entry{
		Agent: &funcAgent{name: "Noop Agent", fn: func(ctx context.Context, payload types.JSON) (*agents.Result, error) {
			return &agents.Result{Success: false, Action: "Nothing to do"}, nil
		}},
		RequiresApproval: true,
	})
	o, _ := newTestOrchestrator(st, registry)

	task, err := o.Submit(ctx, "NOOP", nil)
	require.NoError(t, err)
	outcome, err := o.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusFailed, outcome.Task.Status)
	assert.Nil(t, outcome.ActionLog)
	assert.Contains(t, outcome.Error, "Nothing to do")

	stored, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, stored.Status)
	assert.Contains(t, stored.ResultPayload.String(), "Noop Agent reported failure")
	assert.Empty(t, listLogs(t, st))
}

func TestTickPersistenceFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("ClaimErrorLeavesTaskPending", func(t *testing.T) {
		mem := store.NewMemoryStore()
		st := &faultyStore{Store: mem, claimErr: errors.New("connection refused")}
		o, _ := newTestOrchestrator(st, nil)

		task, err := o.Submit(ctx, types.TaskTypeBackendReview, nil)
		require.NoError(t, err)

		_, err = o.Tick(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")

		stored, err := mem.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusPending, stored.Status)
	})

	t.Run("LogInsertFailureFailsTask", func(t *testing.T) {
		mem := store.NewMemoryStore()
		st := &faultyStore{Store: mem, createLogErr: errors.New("disk full")}
		o, _ := newTestOrchestrator(st, nil)

		task, err := o.Submit(ctx, types.TaskTypeBackendReview, nil)
		require.NoError(t, err)

		outcome, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusFailed, outcome.Task.Status)
		assert.Contains(t, outcome.Error, "disk full")

		stored, err := mem.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusFailed, stored.Status)
		assert.Empty(t, listLogs(t, mem))
	})

	t.Run("CompleteWriteFailurePropagates", func(t *testing.T) {
		mem := store.NewMemoryStore()
		st := &faultyStore{Store: mem, completeErr: errors.New("write timeout")}
		o, _ := newTestOrchestrator(st, nil)

		task, err := o.Submit(ctx, types.TaskTypeBackendReview, nil)
		require.NoError(t, err)

		_, err = o.Tick(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "write timeout")

		stored, err := mem.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusInProgress, stored.Status)
	})

	t.Run("FailWriteFailurePropagates", func(t *testing.T) {
		mem := store.NewMemoryStore()
		st := &faultyStore{Store: mem, failErr: errors.New("write timeout")}
		o, _ := newTestOrchestrator(st, nil)

		_, err := o.Submit(ctx, "UNKNOWN_TYPE", nil)
		require.NoError(t, err)

		_, err = o.Tick(ctx)
		assert.Error(t, err)
	})
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	o, _ := newTestOrchestrator(st, nil)

	task, err := o.Submit(ctx, "NOT_REGISTERED_YET", nil)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Equal(t, "{}", task.ResultPayload.String())
	assert.False(t, task.CreatedAt.IsZero())

	_, err = o.Submit(ctx, "", nil)
	assert.Error(t, err)
}

func TestRequeue(t *testing.T) {
	ctx := context.Background()

	t.Run("Manual", func(t *testing.T) {
		st := store.NewMemoryStore()
		o, _ := newTestOrchestrator(st, nil)

		task, err := o.Submit(ctx, types.TaskTypeBackendReview, nil)
		require.NoError(t, err)

		_, err = o.Requeue(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrInvalidTransition)

		_, err = st.ClaimOldestPending(ctx)
		require.NoError(t, err)

		requeued, err := o.Requeue(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusPending, requeued.Status)

		_, err = o.Requeue(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Stale", func(t *testing.T) {
		st := store.NewMemoryStore()
		o := New(st, agents.NewDefaultRegistry(nil), nil, Options{AgentTimeout: time.Second, StaleAfter: time.Millisecond}, zerolog.Nop())

		task, err := o.Submit(ctx, types.TaskTypeBackendReview, nil)
		require.NoError(t, err)
		_, err = st.ClaimOldestPending(ctx)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		count, err := o.RequeueStale(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		outcome, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, task.ID, outcome.Task.ID)
		assert.Equal(t, types.TaskStatusCompleted, outcome.Task.Status)
	})

	t.Run("UnboundedTimeoutDisablesStaleRecovery", func(t *testing.T) {
		st := store.NewMemoryStore()
		o := New(st, agents.NewDefaultRegistry(nil), nil, Options{StaleAfter: time.Millisecond}, zerolog.Nop())

		task, err := o.Submit(ctx, types.TaskTypeBackendReview, nil)
		require.NoError(t, err)
		_, err = st.ClaimOldestPending(ctx)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		count, err := o.RequeueStale(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		stored, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusInProgress, stored.Status)
	})

	t.Run("StaleRecoveryWaitsForRunningTick", func(t *testing.T) {
		st := store.NewMemoryStore()
		started := make(chan struct{})
		release := make(chan struct{})
		var runs atomic.Int32
		registry := agents.NewRegistry().MustRegister("SLOW", agents.Entry{
			Agent: &funcAgent{name: "Slow Agent", fn: func(ctx context.Context, payload types.JSON) (*agents.Result, error) {
				if runs.Add(1) == 1 {
					close(started)
					<-release
				}
				return &agents.Result{Success: true, Action: "slow"}, nil
			}},
		})
		o := New(st, registry, nil, Options{AgentTimeout: 5 * time.Second, StaleAfter: 20 * time.Millisecond}, zerolog.Nop())

		task, err := o.Submit(ctx, "SLOW", nil)
		require.NoError(t, err)

		type tickResult struct {
			outcome *Outcome
			err     error
		}
		tickDone := make(chan tickResult, 1)
		go func() {
			outcome, err := o.Tick(ctx)
			tickDone <- tickResult{outcome, err}
		}()
		<-started
		time.Sleep(40 * time.Millisecond)

		requeued := make(chan int, 1)
		go func() {
			count, err := o.RequeueStale(ctx)
			assert.NoError(t, err)
			requeued <- count
		}()

		select {
		case <-requeued:
			t.Fatal("stale recovery ran while the tick was still executing")
		case <-time.After(30 * time.Millisecond):
		}
		close(release)

		res := <-tickDone
		require.NoError(t, res.err)
		assert.Equal(t, types.TaskStatusCompleted, res.outcome.Task.Status)
		assert.Zero(t, <-requeued)

		outcome, err := o.Tick(ctx)
		require.NoError(t, err)
		assert.False(t, outcome.Claimed)

		stored, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusCompleted, stored.Status)
		assert.Equal(t, int32(1), runs.Load())
		assert.Len(t, listLogs(t, st), 1)
	})

	t.Run("StaleDisabled", func(t *testing.T) {
		o := New(store.NewMemoryStore(), agents.NewDefaultRegistry(nil), nil, Options{}, zerolog.Nop())
		count, err := o.RequeueStale(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestStageAction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	o, rec := newTestOrchestrator(st, nil)

	entry, err := o.StageAction(ctx, "Blog Agent", "Blog Draft Staged", types.JSON(`{"title":"Hello"}`))
	require.NoError(t, err)
	assert.Equal(t, types.ActionStatusPendingApproval, entry.Status)
	assert.Empty(t, entry.TaskID)
	assert.Nil(t, entry.ExecutedAt)
	assert.Equal(t, []events.EventType{events.EventActionLogged}, rec.eventTypes())

	stored, err := st.GetActionLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Hello"}`, stored.Payload.String())

	t.Run("EmptyPayload", func(t *testing.T) {
		entry, err := o.StageAction(ctx, "Blog Agent", "Blog Draft Staged", nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", entry.Payload.String())
	})

	t.Run("MissingFields", func(t *testing.T) {
		_, err := o.StageAction(ctx, "", "Blog Draft Staged", nil)
		assert.ErrorIs(t, err, ErrActionRequired)
		_, err = o.StageAction(ctx, "Blog Agent", "", nil)
		assert.ErrorIs(t, err, ErrActionRequired)
		assert.Len(t, listLogs(t, st), 2)
	})
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	o := New(st, agents.NewDefaultRegistry(nil), nil, Options{Retention: time.Millisecond}, zerolog.Nop())

	_, err := o.Submit(ctx, types.TaskTypeNightlyLint, nil)
	require.NoError(t, err)
	_, err = o.Tick(ctx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	count, err := o.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSchedulerDrainsQueue(t *testing.T) {
	st := store.NewMemoryStore()
	o, _ := newTestOrchestrator(st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := o.Submit(ctx, types.TaskTypeWeeklyBlog, nil)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		NewScheduler(o, 10*time.Millisecond, zerolog.Nop()).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		counts, err := st.CountTasksByStatus(context.Background())
		return err == nil && counts[types.TaskStatusCompleted] == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
