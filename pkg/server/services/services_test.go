package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/approval"
	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/server/middleware"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"
	"ai-orchestrator/pkg/utils/password"
)

type testEnv struct {
	router *gin.Engine
	store  *store.MemoryStore
	orch   *orchestrator.Orchestrator
	status *StatusService
}

func newTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	hash, err := password.HashPassword("s3cret")
	require.NoError(t, err)
	auth := middleware.NewSessionAuthenticator(zerolog.Nop(),
		types.Admin{Email: "admin@example.com", PasswordHash: hash}, "test-secret", time.Hour)

	st := store.NewMemoryStore()
	probe := func(ctx context.Context) (*agents.HostMetrics, error) { return &agents.HostMetrics{}, nil }
	registry := agents.NewDefaultRegistry(probe)
	orch := orchestrator.New(st, registry, nil, orchestrator.Options{AgentTimeout: time.Second}, zerolog.Nop())
	gate := approval.NewGate(st, nil, zerolog.Nop())

	status := NewStatusService(zerolog.Nop(), st, registry)
	status.uptime = func(ctx context.Context) (uint64, error) { return 42, nil }

	router := gin.New()
	status.RegisterHealth(router)
	api := router.Group("/api")
	NewAuthService(zerolog.Nop(), auth).RegisterRoutes(api)
	protected := api.Group("")
	protected.Use(auth.RequireSession())
	NewTaskService(zerolog.Nop(), st, orch).RegisterRoutes(protected)
	NewActionLogService(zerolog.Nop(), st, gate).RegisterRoutes(protected)
	status.RegisterRoutes(protected)

	return &testEnv{router: router, store: st, orch: orch, status: status}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	w := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "admin@example.com", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("WrongPassword", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "admin@example.com", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("MissingFields", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "admin@example.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Success", func(t *testing.T) {
		assert.NotEmpty(t, env.login(t))
	})
}

func TestRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPost, "/api/orchestrator/tick"},
		{http.MethodGet, "/api/action-logs"},
		{http.MethodPost, "/api/action-logs/x/approve"},
		{http.MethodPost, "/api/action-logs/x/reject"},
		{http.MethodGet, "/api/status"},
	}
	for _, r := range routes {
		w := env.do(t, r.method, r.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", r.method, r.path)
		assert.JSONEq(t, `{"error":"Unauthenticated"}`, w.Body.String())
	}

	// 拒绝时不能有任何写入
	tasks, err := env.store.ListTasks(context.Background(), store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSubmitTickApproveFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(t, http.MethodPost, "/api/tasks", token, gin.H{
		"task_type": "BACKEND_REVIEW",
		"payload":   gin.H{"triggered_by": "admin"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	submitted := decode[types.Task](t, w)
	assert.Equal(t, types.TaskStatusPending, submitted.Status)

	w = env.do(t, http.MethodPost, "/api/orchestrator/tick", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := decode[orchestrator.Outcome](t, w)
	require.True(t, outcome.Claimed)
	assert.Equal(t, submitted.ID, outcome.Task.ID)
	assert.Equal(t, types.TaskStatusCompleted, outcome.Task.Status)
	require.NotNil(t, outcome.ActionLog)
	assert.Equal(t, types.ActionStatusPendingApproval, outcome.ActionLog.Status)

	w = env.do(t, http.MethodGet, "/api/action-logs?status=PENDING_APPROVAL", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		ActionLogs []types.ActionLog `json:"action_logs"`
	}](t, w)
	require.Len(t, list.ActionLogs, 1)
	assert.Equal(t, "Backend Agent", list.ActionLogs[0].AgentName)

	logID := outcome.ActionLog.ID
	w = env.do(t, http.MethodPost, "/api/action-logs/"+logID+"/approve", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.ActionStatusApproved, decode[types.ActionLog](t, w).Status)

	// 已决定的记录不能再次审批
	w = env.do(t, http.MethodPost, "/api/action-logs/"+logID+"/reject", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/tasks/"+submitted.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.TaskStatusCompleted, decode[types.Task](t, w).Status)

	w = env.do(t, http.MethodPost, "/api/orchestrator/tick", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[orchestrator.Outcome](t, w).Claimed)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(t, http.MethodPost, "/api/tasks", token, gin.H{"payload": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未注册的类型可以提交，执行时失败
	w = env.do(t, http.MethodPost, "/api/tasks", token, gin.H{"task_type": "UNKNOWN_TYPE"})
	require.Equal(t, http.StatusCreated, w.Code)
	task := decode[types.Task](t, w)
	assert.JSONEq(t, `{}`, task.ResultPayload.String())
}

func TestTaskEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	ctx := context.Background()

	task, err := env.orch.Submit(ctx, types.TaskTypeNightlyLint, nil)
	require.NoError(t, err)

	t.Run("List", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks?status=PENDING", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[struct {
			Tasks []types.Task `json:"tasks"`
		}](t, w)
		require.Len(t, list.Tasks, 1)
		assert.Equal(t, task.ID, list.Tasks[0].ID)
	})

	t.Run("BadQuery", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/tasks?status=DONE", token, nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/tasks?limit=0", token, nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/tasks?offset=-1", token, nil).Code)
	})

	t.Run("GetMissing", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks/"+uuid.NewString(), token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("RequeuePendingConflicts", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/requeue", token, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("RequeueInProgress", func(t *testing.T) {
		claimed, err := env.store.ClaimOldestPending(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		w := env.do(t, http.MethodPost, "/api/tasks/"+claimed.ID+"/requeue", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, types.TaskStatusPending, decode[types.Task](t, w).Status)
	})

	t.Run("Delete", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/tasks/"+task.ID, token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		w = env.do(t, http.MethodDelete, "/api/tasks/"+task.ID, token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestActionLogEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 60; i++ {
		require.NoError(t, env.store.CreateActionLog(ctx, &types.ActionLog{
			ID:         uuid.NewString(),
			AgentName:  "DevOps Agent",
			ActionType: "Nightly CI Healthcheck",
			Payload:    types.EmptyObject(),
			Status:     types.ActionStatusExecuted,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	w := env.do(t, http.MethodGet, "/api/action-logs", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		ActionLogs []types.ActionLog `json:"action_logs"`
	}](t, w)
	require.Len(t, list.ActionLogs, store.DefaultActionLogLimit)
	assert.True(t, list.ActionLogs[0].CreatedAt.After(list.ActionLogs[1].CreatedAt))

	w = env.do(t, http.MethodGet, "/api/action-logs?limit=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[struct {
		ActionLogs []types.ActionLog `json:"action_logs"`
	}](t, w)
	assert.Len(t, list.ActionLogs, 5)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/action-logs?status=MAYBE", token, nil).Code)

	executedID := list.ActionLogs[0].ID
	w = env.do(t, http.MethodPost, "/api/action-logs/"+executedID+"/approve", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/action-logs/"+uuid.NewString()+"/approve", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/action-logs/"+executedID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	_, err := env.store.GetActionLog(ctx, executedID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	ctx := context.Background()

	_, err := env.orch.Submit(ctx, types.TaskTypeFrontendOptimization, nil)
	require.NoError(t, err)
	_, err = env.orch.Submit(ctx, types.TaskTypeNightlyLint, nil)
	require.NoError(t, err)
	_, err = env.orch.Tick(ctx)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	status := decode[SystemStatus](t, w)
	assert.Equal(t, int64(1), status.Tasks[types.TaskStatusCompleted])
	assert.Equal(t, int64(1), status.Tasks[types.TaskStatusPending])
	assert.Equal(t, int64(1), status.ActionLogs[types.ActionStatusPendingApproval])
	assert.Len(t, status.TaskTypes, 4)
	assert.Equal(t, uint64(42), status.HostUptime)

	t.Run("UptimeUnavailable", func(t *testing.T) {
		env.status.uptime = func(ctx context.Context) (uint64, error) { return 0, errors.New("no host") }
		w := env.do(t, http.MethodGet, "/api/status", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, decode[SystemStatus](t, w).HostUptime)
	})
}
