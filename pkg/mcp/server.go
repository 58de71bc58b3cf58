// Package mcp 通过 MCP 协议向 AI 助手暴露编排器工具
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"
)

const (
	// ServerName MCP 服务名
	ServerName = "CodeChamber-AI-Core"
	// BlogAgentName 草稿记录使用的代理名
	BlogAgentName = "Blog Agent"
	// ActionTypeDraftStaged 草稿记录的操作类型
	ActionTypeDraftStaged = "Blog Draft Staged"
)

// Server MCP 工具服务
type Server struct {
	server       *gomcp.Server
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	logger       zerolog.Logger
}

// NewServer 创建 MCP 服务并注册工具
func NewServer(st store.Store, o *orchestrator.Orchestrator, logger zerolog.Logger, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:        st,
		orchestrator: o,
		logger:       logger.With().Str("service", "mcp").Logger(),
	}
	s.server = gomcp.NewServer(&gomcp.Implementation{Name: ServerName, Version: version}, nil)
	s.registerTools()
	return s
}

// Run 在 stdio 上运行，直到客户端断开或 ctx 取消
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Msg("MCP server listening on stdio")
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer 返回底层 mcp.Server
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

type stageDraftInput struct {
	Title   string `json:"title" jsonschema:"title of the blog draft"`
	Content string `json:"content" jsonschema:"markdown body of the blog draft"`
}

type stageDraftOutput struct {
	LogID  string `json:"log_id"`
	Status string `json:"status"`
}

type submitTaskInput struct {
	TaskType string         `json:"task_type" jsonschema:"task type, e.g. FRONTEND_OPTIMIZATION, BACKEND_REVIEW, NIGHTLY_LINT, WEEKLY_BLOG"`
	Payload  map[string]any `json:"payload,omitempty" jsonschema:"optional JSON object handed to the agent"`
}

type taskOutput struct {
	ID        string `json:"id"`
	TaskType  string `json:"task_type"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type listActionLogsInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status (PENDING_APPROVAL, APPROVED, REJECTED, EXECUTED, COMPLETED, FAILED)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of entries, defaults to 50"`
}

type actionLogOutput struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id,omitempty"`
	AgentName  string `json:"agent_name"`
	ActionType string `json:"action_type"`
	Status     string `json:"status"`
	Payload    any    `json:"payload,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type listActionLogsOutput struct {
	ActionLogs []actionLogOutput `json:"action_logs"`
	Count      int               `json:"count"`
}

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "stage_blog_draft",
		Description: "Stage a new blog draft as an action log entry pending admin approval.",
	}, s.handleStageBlogDraft)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "submit_task",
		Description: "Enqueue a task for the orchestrator. The task is picked up on the next tick.",
	}, s.handleSubmitTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_action_logs",
		Description: "List recent agent action log entries, newest first, with an optional status filter.",
	}, s.handleListActionLogs)
}

func (s *Server) handleStageBlogDraft(ctx context.Context, _ *gomcp.CallToolRequest, input stageDraftInput) (*gomcp.CallToolResult, stageDraftOutput, error) {
	if input.Title == "" || input.Content == "" {
		return errorResult("title and content are required"), stageDraftOutput{}, nil
	}

	payload, err := types.NewJSON(map[string]string{"title": input.Title, "content": input.Content})
	if err != nil {
		return errorResult(err.Error()), stageDraftOutput{}, nil
	}
	entry, err := s.orchestrator.StageAction(ctx, BlogAgentName, ActionTypeDraftStaged, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to stage blog draft")
		return errorResult(fmt.Sprintf("staging draft: %s", err)), stageDraftOutput{}, nil
	}

	s.logger.Info().Str("log_id", entry.ID).Str("title", input.Title).Msg("Blog draft staged")
	result := &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: "Draft staged for approval. Title: " + input.Title}},
	}
	return result, stageDraftOutput{LogID: entry.ID, Status: string(entry.Status)}, nil
}

func (s *Server) handleSubmitTask(ctx context.Context, _ *gomcp.CallToolRequest, input submitTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	var payload types.JSON
	if input.Payload != nil {
		var err error
		if payload, err = types.NewJSON(input.Payload); err != nil {
			return errorResult(err.Error()), taskOutput{}, nil
		}
	}

	task, err := s.orchestrator.Submit(ctx, types.TaskType(input.TaskType), payload)
	if err != nil {
		return errorResult(fmt.Sprintf("submitting task: %s", err)), taskOutput{}, nil
	}

	return nil, taskOutput{
		ID:        task.ID,
		TaskType:  string(task.TaskType),
		Status:    string(task.Status),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleListActionLogs(ctx context.Context, _ *gomcp.CallToolRequest, input listActionLogsInput) (*gomcp.CallToolResult, listActionLogsOutput, error) {
	filter := store.ActionLogFilter{Limit: input.Limit}
	if input.Status != "" {
		status := types.ActionStatus(input.Status)
		if !status.Valid() {
			return errorResult(fmt.Sprintf("invalid status: %s", input.Status)), listActionLogsOutput{}, nil
		}
		filter.Status = &status
	}
	if input.Limit < 0 {
		return errorResult("limit must not be negative"), listActionLogsOutput{}, nil
	}

	logs, err := s.store.ListActionLogs(ctx, filter)
	if err != nil {
		return errorResult(fmt.Sprintf("listing action logs: %s", err)), listActionLogsOutput{}, nil
	}

	out := listActionLogsOutput{
		ActionLogs: make([]actionLogOutput, 0, len(logs)),
		Count:      len(logs),
	}
	for _, l := range logs {
		out.ActionLogs = append(out.ActionLogs, logToOutput(l))
	}
	return nil, out, nil
}

func logToOutput(l *types.ActionLog) actionLogOutput {
	out := actionLogOutput{
		ID:         l.ID,
		TaskID:     l.TaskID,
		AgentName:  l.AgentName,
		ActionType: l.ActionType,
		Status:     string(l.Status),
		CreatedAt:  l.CreatedAt.Format(time.RFC3339),
	}
	var payload any
	if err := l.Payload.Decode(&payload); err == nil {
		out.Payload = payload
	}
	return out
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
