package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/pipeline-rca/internal/metrics"
	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

// autoAcknowledgeAbove is the rule priority past which a match acknowledges the notification.
const autoAcknowledgeAbove = 3

const metadataFieldPrefix = "metadata."

// RuleEngine stamps actions onto notifications from the first matching enabled rule.
type RuleEngine struct {
	mu     sync.RWMutex
	rules  []models.NotificationRule
	logger *slog.Logger
	now    func() time.Time
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

// ruleEntry mirrors NotificationRule with an optional enabled flag defaulting to true.
type ruleEntry struct {
	ID          string                      `yaml:"id"`
	Name        string                      `yaml:"name"`
	Description string                      `yaml:"description"`
	Priority    int                         `yaml:"priority"`
	Conditions  []models.RuleCondition      `yaml:"conditions"`
	Actions     []models.NotificationAction `yaml:"actions"`
	Enabled     *bool                       `yaml:"enabled"`
}

// NewRuleEngine constructs an engine over rules ordered by ascending priority.
func NewRuleEngine(logger *slog.Logger, rules []models.NotificationRule) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &RuleEngine{logger: logger, now: time.Now}
	e.Replace(rules)
	return e
}

// LoadRuleEngine reads rules from path. An empty or missing path falls back to DefaultRules.
func LoadRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return NewRuleEngine(logger, DefaultRules()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("rules file not found, using defaults", slog.String("path", path))
			return NewRuleEngine(logger, DefaultRules()), nil
		}
		return nil, &utils.AppError{Op: "load rules", Msg: path, Err: err}
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, &utils.AppError{Op: "load rules", Msg: path, Err: err}
	}
	return NewRuleEngine(logger, rules), nil
}

// ParseRules decodes a YAML rule pack.
func ParseRules(data []byte) ([]models.NotificationRule, error) {
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	rules := make([]models.NotificationRule, 0, len(cfg.Rules))
	for i, entry := range cfg.Rules {
		if entry.ID == "" {
			return nil, utils.NewValidationError(fmt.Sprintf("rules[%d].id", i))
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		rules = append(rules, models.NotificationRule{
			ID:          entry.ID,
			Name:        entry.Name,
			Description: entry.Description,
			Priority:    entry.Priority,
			Conditions:  entry.Conditions,
			Actions:     entry.Actions,
			Enabled:     enabled,
		})
	}
	return rules, nil
}

// Replace swaps the rule set.
func (e *RuleEngine) Replace(rules []models.NotificationRule) {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b models.NotificationRule) int {
		return a.Priority - b.Priority
	})
	e.mu.Lock()
	e.rules = sorted
	e.mu.Unlock()
}

// Rules returns the rules in evaluation order.
func (e *RuleEngine) Rules() []models.NotificationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// Match returns the first enabled rule whose conditions all hold for n.
func (e *RuleEngine) Match(n models.Notification) (models.NotificationRule, bool) {
	if e == nil {
		return models.NotificationRule{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if ruleMatches(rule, n) {
			return rule, true
		}
	}
	return models.NotificationRule{}, false
}

// Apply stamps the first matching rule onto n. Evaluation stops at that rule even
// when later rules would also match.
func (e *RuleEngine) Apply(n *models.Notification) (models.NotificationRule, bool) {
	rule, ok := e.Match(*n)
	if !ok {
		return rule, false
	}

	n.Actions = appendMissingActions(n.Actions, rule.Actions...)
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[models.MetaAppliedRule] = rule.ID
	if rule.Priority > autoAcknowledgeAbove {
		n.Acknowledged = true
		n.Metadata[models.MetaAutoRule] = rule.ID
		n.Metadata[models.MetaAcknowledgedBy] = "rule:" + rule.ID
		n.Metadata[models.MetaAcknowledgedAt] = utils.FormatRFC3339(e.now())
	}

	metrics.RuleMatched(rule.ID)
	e.logger.Debug("notification rule applied",
		slog.String("rule", rule.ID),
		slog.String("notification_id", n.ID),
		slog.Bool("auto_acknowledged", n.Acknowledged),
	)
	return rule, true
}

func ruleMatches(rule models.NotificationRule, n models.Notification) bool {
	for _, cond := range rule.Conditions {
		if !conditionMatches(cond, n) {
			return false
		}
	}
	return true
}

func conditionMatches(cond models.RuleCondition, n models.Notification) bool {
	value := fieldValue(n, cond.Field)
	switch cond.Operator {
	case models.OperatorEquals:
		return value == cond.Value
	case models.OperatorContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(cond.Value))
	case models.OperatorStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(cond.Value))
	case models.OperatorEndsWith:
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(cond.Value))
	case models.OperatorRegex:
		re, err := regexp.Compile(cond.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}

func fieldValue(n models.Notification, field string) string {
	switch field {
	case "type":
		return string(n.Type)
	case "severity":
		return string(n.Severity)
	case "title":
		return n.Title
	case "message":
		return n.Message
	case "pipelineId":
		return n.PipelineID
	case "pipelineName":
		return n.PipelineName
	case "stage":
		return n.Stage
	case "assignee":
		return n.Assignee
	}
	if key, ok := strings.CutPrefix(field, metadataFieldPrefix); ok {
		if v, found := n.Metadata[key]; found && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func appendMissingActions(existing []models.NotificationAction, additions ...models.NotificationAction) []models.NotificationAction {
	seen := make(map[string]struct{}, len(existing))
	for _, action := range existing {
		seen[action.ID] = struct{}{}
	}
	for _, action := range additions {
		if action.ID == "" {
			continue
		}
		if _, ok := seen[action.ID]; ok {
			continue
		}
		existing = append(existing, action)
		seen[action.ID] = struct{}{}
	}
	return existing
}

// DefaultRules returns the built-in rule pack.
func DefaultRules() []models.NotificationRule {
	return []models.NotificationRule{
		{
			ID:          "critical-production",
			Name:        "Critical production failure",
			Description: "Page on-call for critical failures in production pipelines.",
			Priority:    1,
			Conditions: []models.RuleCondition{
				{Field: "severity", Operator: models.OperatorEquals, Value: string(models.SeverityCritical)},
				{Field: "pipelineName", Operator: models.OperatorContains, Value: "prod"},
			},
			Actions: []models.NotificationAction{
				{ID: "page_oncall", Label: "Page On-Call", Type: models.ActionTypeEscalate, Payload: map[string]any{"channel": "pagerduty"}},
				{ID: "notify_team", Label: "Notify Team", Type: models.ActionTypeAPICall, Payload: map[string]any{"endpoint": "/api/notify/team"}},
			},
			Enabled: true,
		},
		{
			ID:          "security-alert",
			Name:        "Security alert review",
			Description: "Route security alerts to the security team.",
			Priority:    2,
			Conditions: []models.RuleCondition{
				{Field: "type", Operator: models.OperatorEquals, Value: string(models.NotificationSecurityAlert)},
			},
			Actions: []models.NotificationAction{
				{ID: "security_review", Label: "Request Security Review", Type: models.ActionTypeAssign, Payload: map[string]any{"team": "security"}},
			},
			Enabled: true,
		},
		{
			ID:          "timeout-remediation",
			Name:        "Timeout remediation",
			Description: "Offer a timeout increase when the message reports a timeout.",
			Priority:    3,
			Conditions: []models.RuleCondition{
				{Field: "message", Operator: models.OperatorRegex, Value: `(?i)time(d)? ?out`},
			},
			Actions: []models.NotificationAction{
				{ID: "increase_timeout", Label: "Increase Timeout", Type: models.ActionTypeScript, Payload: map[string]any{"script": "timeout(time: 60, unit: 'MINUTES')"}},
			},
			Enabled: true,
		},
		{
			ID:          "low-unstable",
			Name:        "Low severity unstable build",
			Description: "Schedule a review for low severity unstable builds and acknowledge them.",
			Priority:    4,
			Conditions: []models.RuleCondition{
				{Field: "severity", Operator: models.OperatorEquals, Value: string(models.SeverityLow)},
				{Field: "type", Operator: models.OperatorEquals, Value: string(models.NotificationBuildUnstable)},
			},
			Actions: []models.NotificationAction{
				{ID: "schedule_review", Label: "Schedule Review", Type: models.ActionTypeAssign},
			},
			Enabled: true,
		},
		{
			ID:          "success-archive",
			Name:        "Archive successes",
			Description: "Acknowledge success notifications automatically.",
			Priority:    5,
			Conditions: []models.RuleCondition{
				{Field: "type", Operator: models.OperatorEquals, Value: string(models.NotificationPipelineSuccess)},
			},
			Actions: []models.NotificationAction{
				{ID: "archive", Label: "Archive", Type: models.ActionTypeResolve},
			},
			Enabled: true,
		},
	}
}
