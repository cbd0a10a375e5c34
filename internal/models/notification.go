package models

import "time"

// NotificationType enumerates alert kinds.
type NotificationType string

const (
	NotificationPipelineFailure        NotificationType = "pipeline_failure"
	NotificationPipelineSuccess        NotificationType = "pipeline_success"
	NotificationBuildUnstable          NotificationType = "build_unstable"
	NotificationPerformanceDegradation NotificationType = "performance_degradation"
	NotificationSecurityAlert          NotificationType = "security_alert"
	NotificationSystemAlert            NotificationType = "system_alert"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationPipelineFailure, NotificationPipelineSuccess, NotificationBuildUnstable,
		NotificationPerformanceDegradation, NotificationSecurityAlert, NotificationSystemAlert:
		return true
	}
	return false
}

// ActionType tells the UI how to execute an action.
type ActionType string

const (
	ActionTypeAcknowledge ActionType = "acknowledge"
	ActionTypeResolve     ActionType = "resolve"
	ActionTypeEscalate    ActionType = "escalate"
	ActionTypeNavigate    ActionType = "navigate"
	ActionTypeAPICall     ActionType = "api_call"
	ActionTypeScript      ActionType = "script"
	ActionTypeAssign      ActionType = "assign"
)

// Well-known action ids.
const (
	ActionAcknowledge = "acknowledge"
	ActionViewLogs    = "view_logs"
	ActionRestart     = "restart"
	ActionEscalate    = "escalate"
	ActionQuickFix    = "quick_fix"
	ActionResolve     = "resolve"
)

// NotificationAction is an affordance offered on a notification.
type NotificationAction struct {
	ID      string         `json:"id" yaml:"id"`
	Label   string         `json:"label" yaml:"label"`
	Type    ActionType     `json:"type" yaml:"type"`
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Notification is a mutable alert record.
type Notification struct {
	ID           string               `json:"id"`
	Type         NotificationType     `json:"type"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	Severity     Severity             `json:"severity"`
	PipelineID   string               `json:"pipelineId,omitempty"`
	PipelineName string               `json:"pipelineName,omitempty"`
	Stage        string               `json:"stage,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
	Acknowledged bool                 `json:"acknowledged"`
	Resolved     bool                 `json:"resolved"`
	Assignee     string               `json:"assignee,omitempty"`
	Tags         []string             `json:"tags"`
	Actions      []NotificationAction `json:"actions"`
	Metadata     map[string]any       `json:"metadata"`
}

// HasAction reports whether an action with id is present.
func (n Notification) HasAction(id string) bool {
	for _, a := range n.Actions {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Metadata audit keys written by lifecycle operations.
const (
	MetaAcknowledgedBy = "acknowledgedBy"
	MetaAcknowledgedAt = "acknowledgedAt"
	MetaResolvedBy     = "resolvedBy"
	MetaResolvedAt     = "resolvedAt"
	MetaAssignedBy     = "assignedBy"
	MetaAssignedAt     = "assignedAt"
	MetaAutoRule       = "autoAcknowledgedByRule"
	MetaAppliedRule    = "appliedRule"
)

// ConditionOperator enumerates rule condition comparisons.
type ConditionOperator string

const (
	OperatorEquals     ConditionOperator = "equals"
	OperatorContains   ConditionOperator = "contains"
	OperatorStartsWith ConditionOperator = "starts_with"
	OperatorEndsWith   ConditionOperator = "ends_with"
	OperatorRegex      ConditionOperator = "regex"
)

// RuleCondition compares one notification field against a value.
type RuleCondition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    string            `json:"value" yaml:"value"`
}

// NotificationRule augments matching notifications with actions.
type NotificationRule struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description" yaml:"description"`
	Priority    int                  `json:"priority" yaml:"priority"`
	Conditions  []RuleCondition      `json:"conditions" yaml:"conditions"`
	Actions     []NotificationAction `json:"actions" yaml:"actions"`
	Enabled     bool                 `json:"enabled" yaml:"enabled"`
}

// NotificationFilters narrows a notification query.
type NotificationFilters struct {
	Type         NotificationType `json:"type,omitempty"`
	Severity     Severity         `json:"severity,omitempty"`
	PipelineID   string           `json:"pipelineId,omitempty"`
	Acknowledged *bool            `json:"acknowledged,omitempty"`
	Resolved     *bool            `json:"resolved,omitempty"`
	Assignee     string           `json:"assignee,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	Limit        int              `json:"limit,omitempty"`
	Offset       int              `json:"offset,omitempty"`
}

// NotificationStats aggregates the notification store.
type NotificationStats struct {
	Total                 int            `json:"total"`
	Unacknowledged        int            `json:"unacknowledged"`
	Unresolved            int            `json:"unresolved"`
	ByType                map[string]int `json:"byType"`
	BySeverity            map[string]int `json:"bySeverity"`
	ByPipeline            map[string]int `json:"byPipeline"`
	AverageResolutionTime float64        `json:"averageResolutionTime"`
	EscalationRate        float64        `json:"escalationRate"`
}
