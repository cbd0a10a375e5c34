package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/pipeline-rca/internal/cache"
	"github.com/miradorstack/pipeline-rca/internal/engine"
	"github.com/miradorstack/pipeline-rca/internal/knowledge"
	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/notifications"
	"github.com/miradorstack/pipeline-rca/internal/patterns"
	"github.com/miradorstack/pipeline-rca/internal/repo"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

const latestStatsKey = "pipeline-rca:stats:latest"

// JenkinsClient is the Jenkins surface exposed through the service.
type JenkinsClient interface {
	ListJobs(ctx context.Context, t repo.Target) ([]repo.Job, error)
	GetBuild(ctx context.Context, t repo.Target, job string, number int) (repo.Build, error)
	LastBuilds(ctx context.Context, t repo.Target, job string, limit int) ([]repo.Build, error)
	ConsoleLog(ctx context.Context, t repo.Target, job string, number, tailLines int) ([]string, error)
	Queue(ctx context.Context, t repo.Target) ([]repo.QueueItem, error)
	Stages(ctx context.Context, t repo.Target, job string, number int) ([]repo.Stage, error)
	TriggerBuild(ctx context.Context, t repo.Target, job string) error
}

// Options tunes the service.
type Options struct {
	HistorySize int
	StatsTTL    time.Duration
	Target      repo.Target
}

// PipelineService is the transport-independent facade over the classifier,
// notification store, knowledge base and Jenkins client.
type PipelineService struct {
	logger        *slog.Logger
	classifier    *engine.Classifier
	notifications *notifications.Store
	catalog       *knowledge.Catalog
	miner         *patterns.Miner
	jenkins       JenkinsClient
	cache         cache.Provider
	target        repo.Target
	statsTTL      time.Duration
	latencies     *utils.LatencyTracker

	historyMu   sync.RWMutex
	history     []models.FailureAnalysis
	historySize int
}

// NewPipelineService wires the service. jenkins may be nil when no upstream is configured.
func NewPipelineService(
	logger *slog.Logger,
	classifier *engine.Classifier,
	store *notifications.Store,
	catalog *knowledge.Catalog,
	jenkins JenkinsClient,
	provider cache.Provider,
	opts Options,
) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = engine.NewClassifier(logger, nil)
	}
	if store == nil {
		store = notifications.NewStore(logger, nil, 0)
	}
	if catalog == nil {
		catalog = knowledge.NewCatalog(logger, nil)
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 500
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = 10 * time.Minute
	}

	s := &PipelineService{
		logger:        logger,
		classifier:    classifier,
		notifications: store,
		catalog:       catalog,
		jenkins:       jenkins,
		cache:         provider,
		target:        opts.Target,
		statsTTL:      opts.StatsTTL,
		latencies:     utils.NewLatencyTracker(1024),
		historySize:   opts.HistorySize,
	}
	s.miner = patterns.NewMiner(logger, patterns.StoreFunc(s.storeStats))
	return s
}

// Notifications exposes the underlying store for subscribers and the monitor.
func (s *PipelineService) Notifications() *notifications.Store {
	return s.notifications
}

// Classifier exposes the classifier shared with the monitor.
func (s *PipelineService) Classifier() *engine.Classifier {
	return s.classifier
}

// Catalog exposes the knowledge base.
func (s *PipelineService) Catalog() *knowledge.Catalog {
	return s.catalog
}

// Classify analyses a failure, records it in the bounded history and attaches
// the category's suggested actions and auto-fix script.
func (s *PipelineService) Classify(_ context.Context, req models.ClassifyRequest) (models.ClassifyResponse, error) {
	var missing []string
	if req.PipelineID == "" {
		missing = append(missing, "pipelineId")
	}
	if req.FailureReason == "" {
		missing = append(missing, "failureReason")
	}
	if len(missing) > 0 {
		return models.ClassifyResponse{}, utils.NewValidationError(missing...)
	}

	start := time.Now()
	analysis := s.classifier.Analyze(req.PipelineID, req.FailureReason, req.Logs, req.AffectedStages, s.History())
	s.Record(analysis)
	s.observeLatency(time.Since(start))

	resp := models.ClassifyResponse{
		Analysis:         analysis,
		SuggestedActions: append([]string{}, analysis.Category.Solutions...),
	}
	if analysis.Category.AutoFixAvailable {
		resp.AutoFixScript = s.catalog.AutoFixForCategory(analysis.Category.ID)
	}
	return resp, nil
}

func (s *PipelineService) observeLatency(d time.Duration) {
	s.latencies.Observe(d)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("classification latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

// LatencyP95 returns the current p95 classification latency.
func (s *PipelineService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// History returns a copy of the recent analyses, oldest first.
func (s *PipelineService) History() []models.FailureAnalysis {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()
	return append([]models.FailureAnalysis(nil), s.history...)
}

// Record appends an analysis, evicting the oldest beyond the history size.
func (s *PipelineService) Record(analysis models.FailureAnalysis) {
	analysis.SimilarFailures = nil
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history, analysis)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]models.FailureAnalysis(nil), s.history[over:]...)
	}
}

// FailureStats aggregates the client-supplied historical failures, or the
// in-process history when raw is empty.
func (s *PipelineService) FailureStats(ctx context.Context, raw string) (models.FailureStats, error) {
	analyses, err := patterns.ParseHistoricalFailures(raw)
	if err != nil {
		return models.FailureStats{}, err
	}
	if analyses == nil {
		analyses = s.History()
	}
	return s.miner.GenerateFailureStats(ctx, analyses), nil
}

// LatestStats returns the most recently generated stats snapshot.
func (s *PipelineService) LatestStats(ctx context.Context) (models.FailureStats, error) {
	var stats models.FailureStats
	if err := cache.GetJSON(ctx, s.cache, latestStatsKey, &stats); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.FailureStats{}, &utils.NotFoundError{Kind: "stats snapshot", ID: "latest"}
		}
		return models.FailureStats{}, utils.NewAppError("latest stats", "cache read failed", err)
	}
	return stats, nil
}

func (s *PipelineService) storeStats(ctx context.Context, stats models.FailureStats) error {
	return cache.SetJSON(ctx, s.cache, latestStatsKey, stats, s.statsTTL)
}

// CreateNotification validates and stores a notification.
func (s *PipelineService) CreateNotification(_ context.Context, req models.CreateNotificationRequest) (models.Notification, error) {
	return s.notifications.Create(req)
}

// GetNotification returns one notification by id.
func (s *PipelineService) GetNotification(_ context.Context, id string) (models.Notification, error) {
	n, ok := s.notifications.Get(id)
	if !ok {
		return models.Notification{}, &utils.NotFoundError{Kind: "notification", ID: id}
	}
	return n, nil
}

// NotificationAction applies a lifecycle action to a notification.
func (s *PipelineService) NotificationAction(_ context.Context, req models.NotificationActionRequest) (models.NotificationActionResponse, error) {
	var missing []string
	if req.Action == "" {
		missing = append(missing, "action")
	}
	if req.NotificationID == "" {
		missing = append(missing, "notificationId")
	}
	if req.Action == models.LifecycleAssign && req.Assignee == "" {
		missing = append(missing, "assignee")
	}
	if len(missing) > 0 {
		return models.NotificationActionResponse{}, utils.NewValidationError(missing...)
	}

	var found bool
	var message string
	switch req.Action {
	case models.LifecycleAcknowledge:
		found = s.notifications.Acknowledge(req.NotificationID, req.UserID)
		message = "Notification acknowledged"
	case models.LifecycleResolve:
		found = s.notifications.Resolve(req.NotificationID, req.UserID)
		message = "Notification resolved"
	case models.LifecycleAssign:
		found = s.notifications.Assign(req.NotificationID, req.Assignee, req.UserID)
		message = fmt.Sprintf("Notification assigned to %s", req.Assignee)
	default:
		return models.NotificationActionResponse{}, &utils.ValidationError{
			Fields: []string{"action"},
			Msg:    fmt.Sprintf("unknown action %q", req.Action),
		}
	}
	if !found {
		return models.NotificationActionResponse{}, &utils.NotFoundError{Kind: "notification", ID: req.NotificationID}
	}
	return models.NotificationActionResponse{
		Success:        true,
		Message:        message,
		Action:         req.Action,
		NotificationID: req.NotificationID,
	}, nil
}

// ListNotifications returns the filtered page plus global stats.
func (s *PipelineService) ListNotifications(_ context.Context, filters models.NotificationFilters) models.NotificationListResponse {
	items, total := s.notifications.List(filters)
	return models.NotificationListResponse{
		Notifications: items,
		Stats:         s.notifications.Stats(),
		Total:         total,
	}
}

// CleanupNotifications drops notifications past retention.
func (s *PipelineService) CleanupNotifications(_ context.Context) int {
	return s.notifications.Cleanup()
}

// KnowledgeBase dispatches a knowledge base action.
func (s *PipelineService) KnowledgeBase(_ context.Context, req models.KnowledgeBaseRequest) (models.KnowledgeBaseResponse, error) {
	resp := models.KnowledgeBaseResponse{Action: req.Action}
	list := func(items []models.SolutionTemplate) (models.KnowledgeBaseResponse, error) {
		total := len(items)
		resp.Solutions = items
		resp.Total = &total
		return resp, nil
	}

	switch req.Action {
	case models.KBActionStats:
		stats := s.catalog.Stats()
		resp.Stats = &stats
		return resp, nil
	case models.KBActionSearch:
		return list(s.catalog.Search(req.Query))
	case models.KBActionCategory:
		if req.Category == "" {
			return resp, utils.NewValidationError("category")
		}
		return list(s.catalog.ByCategory(req.Category))
	case models.KBActionSeverity:
		if req.Severity == "" {
			return resp, utils.NewValidationError("severity")
		}
		if !req.Severity.Valid() {
			return resp, &utils.ValidationError{Fields: []string{"severity"}, Msg: fmt.Sprintf("invalid severity %q", req.Severity)}
		}
		return list(s.catalog.BySeverity(req.Severity))
	case models.KBActionFindSolutions:
		if req.FailureReason == "" {
			return resp, utils.NewValidationError("failureReason")
		}
		return list(s.catalog.FindSolutions(req.FailureReason, req.Logs))
	case models.KBActionAddSolution:
		if req.Solution == nil {
			return resp, utils.NewValidationError("solution")
		}
		added, err := s.catalog.Add(*req.Solution)
		if err != nil {
			return resp, err
		}
		resp.Solution = &added
		return resp, nil
	case models.KBActionGetAutoFix:
		if req.SolutionID == "" {
			return resp, utils.NewValidationError("solutionId")
		}
		script, err := s.catalog.AutoFix(req.SolutionID)
		if err != nil {
			return resp, err
		}
		resp.SolutionID = req.SolutionID
		resp.AutoFixScript = script
		return resp, nil
	case models.KBActionRecognizePattern:
		if req.Text == "" {
			return resp, utils.NewValidationError("text")
		}
		resp.Matches = s.catalog.RecognizePattern(req.Text)
		return resp, nil
	default:
		return resp, &utils.ValidationError{Fields: []string{"action"}, Msg: fmt.Sprintf("unknown action %q", req.Action)}
	}
}
