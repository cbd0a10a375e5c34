package notifications

import (
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/pipeline-rca/internal/metrics"
	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

// DefaultRetention is how long notifications survive Cleanup.
const DefaultRetention = 30 * 24 * time.Hour

const systemUser = "system"

// RuleApplier stamps rule actions onto a freshly created notification.
type RuleApplier interface {
	Apply(n *models.Notification) (models.NotificationRule, bool)
}

// Subscriber receives every created notification. Errors and panics are logged
// and never reach the creator.
type Subscriber func(models.Notification) error

type subscription struct {
	id int
	fn Subscriber
}

// Store is the in-memory notification engine.
type Store struct {
	mu    sync.RWMutex
	items []models.Notification

	subMu       sync.RWMutex
	subscribers []subscription
	nextSubID   int

	rules     RuleApplier
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

// NewStore constructs a notification store; rules may be nil and retention <= 0 selects DefaultRetention.
func NewStore(logger *slog.Logger, rules RuleApplier, retention time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		rules:     rules,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

// Create builds, stores and publishes a notification.
func (s *Store) Create(req models.CreateNotificationRequest) (models.Notification, error) {
	if err := validateCreate(req); err != nil {
		return models.Notification{}, err
	}

	metadata := make(map[string]any, len(req.Metadata))
	maps.Copy(metadata, req.Metadata)

	n := models.Notification{
		ID:           newNotificationID(),
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		Severity:     req.Severity,
		PipelineID:   req.PipelineID,
		PipelineName: req.PipelineName,
		Stage:        req.Stage,
		Timestamp:    s.now().UTC(),
		Tags:         buildTags(req),
		Actions:      baselineActions(req),
		Metadata:     metadata,
	}

	if s.rules != nil {
		s.rules.Apply(&n)
	}

	s.mu.Lock()
	s.items = append(s.items, n)
	s.mu.Unlock()

	metrics.NotificationCreated(string(n.Type), string(n.Severity))
	s.logger.Info("notification created",
		slog.String("notification_id", n.ID),
		slog.String("type", string(n.Type)),
		slog.String("severity", string(n.Severity)),
		slog.String("pipeline_id", n.PipelineID),
	)

	out := cloneNotification(n)
	s.publish(out)
	return out, nil
}

func validateCreate(req models.CreateNotificationRequest) error {
	missing := make([]string, 0, 4)
	if req.Type == "" {
		missing = append(missing, "type")
	}
	if req.Title == "" {
		missing = append(missing, "title")
	}
	if req.Message == "" {
		missing = append(missing, "message")
	}
	if req.Severity == "" {
		missing = append(missing, "severity")
	}
	if len(missing) > 0 {
		return utils.NewValidationError(missing...)
	}
	if !req.Type.Valid() {
		return &utils.ValidationError{Fields: []string{"type"}, Msg: fmt.Sprintf("invalid notification type %q", req.Type)}
	}
	if !req.Severity.Valid() {
		return &utils.ValidationError{Fields: []string{"severity"}, Msg: fmt.Sprintf("invalid severity %q", req.Severity)}
	}
	return nil
}

// Get returns a copy of the notification with id.
func (s *Store) Get(id string) (models.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.items {
		if n.ID == id {
			return cloneNotification(n), true
		}
	}
	return models.Notification{}, false
}

// Acknowledge marks a notification acknowledged. Repeated calls succeed and refresh the audit fields.
func (s *Store) Acknowledge(id, userID string) bool {
	return s.mutate(id, func(n *models.Notification, at string) {
		n.Acknowledged = true
		n.Metadata[models.MetaAcknowledgedBy] = actor(userID)
		n.Metadata[models.MetaAcknowledgedAt] = at
	})
}

// Resolve marks a notification resolved without touching the acknowledged flag.
func (s *Store) Resolve(id, userID string) bool {
	return s.mutate(id, func(n *models.Notification, at string) {
		n.Resolved = true
		n.Metadata[models.MetaResolvedBy] = actor(userID)
		n.Metadata[models.MetaResolvedAt] = at
	})
}

// Assign sets the assignee.
func (s *Store) Assign(id, assignee, userID string) bool {
	return s.mutate(id, func(n *models.Notification, at string) {
		n.Assignee = assignee
		n.Metadata[models.MetaAssignedBy] = actor(userID)
		n.Metadata[models.MetaAssignedAt] = at
	})
}

func (s *Store) mutate(id string, fn func(n *models.Notification, at string)) bool {
	at := utils.FormatRFC3339(s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].Metadata == nil {
			s.items[i].Metadata = make(map[string]any)
		}
		fn(&s.items[i], at)
		return true
	}
	return false
}

// List filters, sorts by severity then recency, and paginates. The second
// return value counts matches before pagination.
func (s *Store) List(filters models.NotificationFilters) ([]models.Notification, int) {
	s.mu.RLock()
	matched := make([]models.Notification, 0, len(s.items))
	for _, n := range s.items {
		if matchesFilters(n, filters) {
			matched = append(matched, cloneNotification(n))
		}
	}
	s.mu.RUnlock()

	SortByPriority(matched)
	total := len(matched)

	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return []models.Notification{}, total
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, total
}

// SortByPriority orders notifications by severity descending, then newest first.
func SortByPriority(items []models.Notification) {
	slices.SortStableFunc(items, func(a, b models.Notification) int {
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return rb - ra
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
}

func matchesFilters(n models.Notification, f models.NotificationFilters) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Severity != "" && n.Severity != f.Severity {
		return false
	}
	if f.PipelineID != "" && n.PipelineID != f.PipelineID {
		return false
	}
	if f.Acknowledged != nil && n.Acknowledged != *f.Acknowledged {
		return false
	}
	if f.Resolved != nil && n.Resolved != *f.Resolved {
		return false
	}
	if f.Assignee != "" && n.Assignee != f.Assignee {
		return false
	}
	for _, tag := range f.Tags {
		if !slices.Contains(n.Tags, tag) {
			return false
		}
	}
	return true
}

// Stats aggregates the whole store.
func (s *Store) Stats() models.NotificationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.NotificationStats{
		Total:      len(s.items),
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
		ByPipeline: make(map[string]int),
	}

	resolvedCount := 0
	resolutionMinutes := 0.0
	escalatable := 0
	for _, n := range s.items {
		if !n.Acknowledged {
			stats.Unacknowledged++
		}
		if !n.Resolved {
			stats.Unresolved++
		}
		stats.ByType[string(n.Type)]++
		stats.BySeverity[string(n.Severity)]++
		if n.PipelineName != "" {
			stats.ByPipeline[n.PipelineName]++
		}
		if n.HasAction(models.ActionEscalate) {
			escalatable++
		}
		if !n.Resolved {
			continue
		}
		raw, ok := n.Metadata[models.MetaResolvedAt].(string)
		if !ok {
			continue
		}
		resolvedAt, err := utils.ParseRFC3339(raw)
		if err != nil {
			continue
		}
		resolutionMinutes += resolvedAt.Sub(n.Timestamp).Minutes()
		resolvedCount++
	}

	if resolvedCount > 0 {
		stats.AverageResolutionTime = resolutionMinutes / float64(resolvedCount)
	}
	if stats.Total > 0 {
		stats.EscalationRate = float64(escalatable) / float64(stats.Total) * 100
	}
	return stats
}

// Cleanup drops notifications older than the retention window and returns how many were removed.
// A notification exactly at the boundary is kept.
func (s *Store) Cleanup() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	removed := 0
	for _, n := range s.items {
		if now.Sub(n.Timestamp) > s.retention {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	clear(s.items[len(kept):])
	s.items = kept
	if removed > 0 {
		s.logger.Info("notifications cleaned up", slog.Int("removed", removed), slog.Int("remaining", len(kept)))
	}
	return removed
}

// Subscribe registers fn for created notifications and returns a function that removes it.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscription{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			s.subscribers = slices.DeleteFunc(s.subscribers, func(sub subscription) bool {
				return sub.id == id
			})
		})
	}
}

func (s *Store) publish(n models.Notification) {
	s.subMu.RLock()
	subs := slices.Clone(s.subscribers)
	s.subMu.RUnlock()

	for _, sub := range subs {
		s.invoke(sub, n)
	}
}

func (s *Store) invoke(sub subscription, n models.Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberFailed()
			s.logger.Error("notification subscriber panicked",
				slog.Int("subscriber", sub.id),
				slog.String("notification_id", n.ID),
				slog.Any("panic", r),
			)
		}
	}()
	if err := sub.fn(n); err != nil {
		metrics.SubscriberFailed()
		s.logger.Warn("notification subscriber failed",
			slog.Int("subscriber", sub.id),
			slog.String("notification_id", n.ID),
			slog.Any("error", err),
		)
	}
}

func buildTags(req models.CreateNotificationRequest) []string {
	tags := make([]string, 0, 6)
	add := func(tag string) {
		tag = normaliseTag(tag)
		if tag != "" && !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	add(string(req.Type))
	add(string(req.Severity))
	add(req.PipelineName)
	add(req.Stage)
	if req.Severity == models.SeverityHigh || req.Severity == models.SeverityCritical {
		add("urgent")
	}
	if req.Type == models.NotificationPipelineFailure {
		add("needs_attention")
	}
	return tags
}

var tagWhitespace = regexp.MustCompile(`\s+`)

// normaliseTag lower-cases value and turns each whitespace run into one underscore.
// Blank values produce no tag.
func normaliseTag(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return tagWhitespace.ReplaceAllString(strings.ToLower(value), "_")
}

func baselineActions(req models.CreateNotificationRequest) []models.NotificationAction {
	failure := req.Type == models.NotificationPipelineFailure
	urgent := req.Severity == models.SeverityHigh || req.Severity == models.SeverityCritical

	actions := []models.NotificationAction{
		{ID: models.ActionAcknowledge, Label: "Acknowledge", Type: models.ActionTypeAcknowledge},
	}
	if failure {
		actions = append(actions,
			models.NotificationAction{
				ID:      models.ActionViewLogs,
				Label:   "View Logs",
				Type:    models.ActionTypeNavigate,
				Payload: map[string]any{"url": "/pipelines/" + req.PipelineID + "/logs"},
			},
			models.NotificationAction{
				ID:      models.ActionRestart,
				Label:   "Restart Pipeline",
				Type:    models.ActionTypeAPICall,
				Payload: map[string]any{"endpoint": "/api/jenkins/restart", "method": "POST", "pipelineId": req.PipelineID},
			},
		)
	}
	if urgent {
		actions = append(actions, models.NotificationAction{ID: models.ActionEscalate, Label: "Escalate", Type: models.ActionTypeEscalate})
	}
	if failure {
		actions = append(actions, models.NotificationAction{
			ID:      models.ActionQuickFix,
			Label:   "Quick Fix",
			Type:    models.ActionTypeScript,
			Payload: map[string]any{"pipelineId": req.PipelineID},
		})
	}
	return append(actions, models.NotificationAction{ID: models.ActionResolve, Label: "Resolve", Type: models.ActionTypeResolve})
}

func cloneNotification(n models.Notification) models.Notification {
	n.Tags = slices.Clone(n.Tags)
	n.Actions = slices.Clone(n.Actions)
	n.Metadata = maps.Clone(n.Metadata)
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	return n
}

func actor(userID string) string {
	if userID == "" {
		return systemUser
	}
	return userID
}

func newNotificationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
