package models

// ClassifyRequest is the classify wire input.
type ClassifyRequest struct {
	PipelineID     string   `json:"pipelineId"`
	FailureReason  string   `json:"failureReason"`
	Logs           []string `json:"logs"`
	AffectedStages []string `json:"affectedStages"`
}

// ClassifyResponse is the classify wire output.
type ClassifyResponse struct {
	Analysis         FailureAnalysis `json:"analysis"`
	SuggestedActions []string        `json:"suggestedActions"`
	AutoFixScript    *string         `json:"autoFixScript"`
}

// CreateNotificationRequest is the notification create wire input.
type CreateNotificationRequest struct {
	Type         NotificationType `json:"type"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	Severity     Severity         `json:"severity"`
	PipelineID   string           `json:"pipelineId,omitempty"`
	PipelineName string           `json:"pipelineName,omitempty"`
	Stage        string           `json:"stage,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// Lifecycle action names accepted by the notification action endpoint.
const (
	LifecycleAcknowledge = "acknowledge"
	LifecycleResolve     = "resolve"
	LifecycleAssign      = "assign"
)

// NotificationActionRequest is the notification action wire input.
type NotificationActionRequest struct {
	Action         string `json:"action"`
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId,omitempty"`
	Assignee       string `json:"assignee,omitempty"`
}

// NotificationActionResponse is the notification action wire output.
type NotificationActionResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Action         string `json:"action"`
	NotificationID string `json:"notificationId"`
}

// NotificationListResponse is the notification query wire output.
type NotificationListResponse struct {
	Notifications []Notification    `json:"notifications"`
	Stats         NotificationStats `json:"stats"`
	Total         int               `json:"total"`
}

// KnowledgeBaseRequest carries the knowledge base action discriminator and its inputs.
type KnowledgeBaseRequest struct {
	Action        string            `json:"action"`
	Query         string            `json:"query,omitempty"`
	Category      string            `json:"category,omitempty"`
	Severity      Severity          `json:"severity,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	Logs          []string          `json:"logs,omitempty"`
	SolutionID    string            `json:"solutionId,omitempty"`
	Text          string            `json:"text,omitempty"`
	Solution      *SolutionTemplate `json:"solution,omitempty"`
}

// Knowledge base actions.
const (
	KBActionStats            = "stats"
	KBActionSearch           = "search"
	KBActionCategory         = "category"
	KBActionSeverity         = "severity"
	KBActionFindSolutions    = "find-solutions"
	KBActionAddSolution      = "add-solution"
	KBActionGetAutoFix       = "get-autofix"
	KBActionRecognizePattern = "recognize-pattern"
)

// KnowledgeBaseResponse is the knowledge base wire output; only the fields
// relevant to the requested action are set.
type KnowledgeBaseResponse struct {
	Action        string              `json:"action"`
	Solutions     []SolutionTemplate  `json:"solutions,omitempty"`
	Total         *int                `json:"total,omitempty"`
	Stats         *KnowledgeBaseStats `json:"stats,omitempty"`
	Solution      *SolutionTemplate   `json:"solution,omitempty"`
	SolutionID    string              `json:"solutionId,omitempty"`
	AutoFixScript *string             `json:"autoFixScript,omitempty"`
	Matches       []PatternMatch      `json:"matches,omitempty"`
}
