package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/services"
)

// Server exposes the pipeline service as MCP tools.
type Server struct {
	MCPServer *sdkmcp.Server

	svc    *services.PipelineService
	logger *slog.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(logger *slog.Logger, svc *services.PipelineService, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "pipeline-rca", Version: version}, nil),
		svc:       svc,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "classify_failure",
		Description: "Classify a Jenkins build failure from its reason and log lines. Returns the analysis, suggested actions and any auto-fix script.",
	}, s.handleClassify)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "create_notification",
		Description: "Create a pipeline notification. Tags and actions are derived automatically.",
	}, s.handleCreateNotification)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_notifications",
		Description: "List notifications ordered by severity then recency, with optional filters and paging.",
	}, s.handleListNotifications)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "notification_action",
		Description: "Acknowledge, resolve or assign a notification.",
	}, s.handleNotificationAction)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "search_knowledge_base",
		Description: "Run a knowledge base action: stats, search, category, severity, find-solutions, get-autofix or recognize-pattern. Defaults to search.",
	}, s.handleKnowledgeBase)
}

type classifyInput struct {
	PipelineID     string   `json:"pipelineId" jsonschema:"pipeline or job identifier"`
	FailureReason  string   `json:"failureReason" jsonschema:"failure message or first error line"`
	Logs           []string `json:"logs,omitempty" jsonschema:"relevant console log lines"`
	AffectedStages []string `json:"affectedStages,omitempty" jsonschema:"pipeline stages that failed"`
}

type createNotificationInput struct {
	Type         string `json:"type" jsonschema:"pipeline_failure, pipeline_success, build_unstable, performance_degradation, security_alert or system_alert"`
	Title        string `json:"title" jsonschema:"short headline"`
	Message      string `json:"message" jsonschema:"notification body"`
	Severity     string `json:"severity" jsonschema:"low, medium, high or critical"`
	PipelineID   string `json:"pipelineId,omitempty" jsonschema:"pipeline identifier"`
	PipelineName string `json:"pipelineName,omitempty" jsonschema:"pipeline display name"`
	Stage        string `json:"stage,omitempty" jsonschema:"pipeline stage"`
}

type listNotificationsInput struct {
	Type         string   `json:"type,omitempty" jsonschema:"notification type filter"`
	Severity     string   `json:"severity,omitempty" jsonschema:"severity filter"`
	PipelineID   string   `json:"pipelineId,omitempty" jsonschema:"pipeline filter"`
	Acknowledged *bool    `json:"acknowledged,omitempty" jsonschema:"acknowledged flag filter"`
	Resolved     *bool    `json:"resolved,omitempty" jsonschema:"resolved flag filter"`
	Assignee     string   `json:"assignee,omitempty" jsonschema:"assignee filter"`
	Tags         []string `json:"tags,omitempty" jsonschema:"every tag must be present"`
	Limit        int      `json:"limit,omitempty" jsonschema:"page size"`
	Offset       int      `json:"offset,omitempty" jsonschema:"number of results to skip"`
}

type notificationActionInput struct {
	Action         string `json:"action" jsonschema:"acknowledge, resolve or assign"`
	NotificationID string `json:"notificationId" jsonschema:"notification id"`
	UserID         string `json:"userId,omitempty" jsonschema:"acting user"`
	Assignee       string `json:"assignee,omitempty" jsonschema:"assignee, required for assign"`
}

type knowledgeBaseInput struct {
	Action        string   `json:"action,omitempty" jsonschema:"knowledge base action, default search"`
	Query         string   `json:"query,omitempty" jsonschema:"free-text query for search"`
	Category      string   `json:"category,omitempty" jsonschema:"category id for the category action"`
	Severity      string   `json:"severity,omitempty" jsonschema:"severity for the severity action"`
	FailureReason string   `json:"failureReason,omitempty" jsonschema:"failure text for find-solutions"`
	Logs          []string `json:"logs,omitempty" jsonschema:"log lines for find-solutions"`
	SolutionID    string   `json:"solutionId,omitempty" jsonschema:"solution id for get-autofix"`
	Text          string   `json:"text,omitempty" jsonschema:"text for recognize-pattern"`
}

func (s *Server) handleClassify(ctx context.Context, _ *sdkmcp.CallToolRequest, in classifyInput) (*sdkmcp.CallToolResult, any, error) {
	resp, err := s.svc.Classify(ctx, models.ClassifyRequest{
		PipelineID:     in.PipelineID,
		FailureReason:  in.FailureReason,
		Logs:           in.Logs,
		AffectedStages: in.AffectedStages,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(resp)
}

func (s *Server) handleCreateNotification(ctx context.Context, _ *sdkmcp.CallToolRequest, in createNotificationInput) (*sdkmcp.CallToolResult, any, error) {
	n, err := s.svc.CreateNotification(ctx, models.CreateNotificationRequest{
		Type:         models.NotificationType(in.Type),
		Title:        in.Title,
		Message:      in.Message,
		Severity:     models.Severity(in.Severity),
		PipelineID:   in.PipelineID,
		PipelineName: in.PipelineName,
		Stage:        in.Stage,
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("notification created via mcp", slog.String("id", n.ID))
	return jsonResult(n)
}

func (s *Server) handleListNotifications(ctx context.Context, _ *sdkmcp.CallToolRequest, in listNotificationsInput) (*sdkmcp.CallToolResult, any, error) {
	return jsonResult(s.svc.ListNotifications(ctx, models.NotificationFilters{
		Type:         models.NotificationType(in.Type),
		Severity:     models.Severity(in.Severity),
		PipelineID:   in.PipelineID,
		Acknowledged: in.Acknowledged,
		Resolved:     in.Resolved,
		Assignee:     in.Assignee,
		Tags:         in.Tags,
		Limit:        in.Limit,
		Offset:       in.Offset,
	}))
}

func (s *Server) handleNotificationAction(ctx context.Context, _ *sdkmcp.CallToolRequest, in notificationActionInput) (*sdkmcp.CallToolResult, any, error) {
	resp, err := s.svc.NotificationAction(ctx, models.NotificationActionRequest(in))
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(resp)
}

func (s *Server) handleKnowledgeBase(ctx context.Context, _ *sdkmcp.CallToolRequest, in knowledgeBaseInput) (*sdkmcp.CallToolResult, any, error) {
	action := in.Action
	if action == "" {
		action = models.KBActionSearch
	}
	if action == models.KBActionAddSolution {
		return nil, nil, fmt.Errorf("action %q is not available over MCP", action)
	}
	resp, err := s.svc.KnowledgeBase(ctx, models.KnowledgeBaseRequest{
		Action:        action,
		Query:         in.Query,
		Category:      in.Category,
		Severity:      models.Severity(in.Severity),
		FailureReason: in.FailureReason,
		Logs:          in.Logs,
		SolutionID:    in.SolutionID,
		Text:          in.Text,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(resp)
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
