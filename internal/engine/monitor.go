package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/pipeline-rca/internal/extractors"
	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/repo"
)

// JenkinsAPI is the subset of the Jenkins client the monitor polls.
type JenkinsAPI interface {
	ListJobs(ctx context.Context, t repo.Target) ([]repo.Job, error)
	LastBuilds(ctx context.Context, t repo.Target, job string, limit int) ([]repo.Build, error)
	ConsoleLog(ctx context.Context, t repo.Target, job string, number, tailLines int) ([]string, error)
}

// NotificationSink receives the notifications raised by the monitor.
type NotificationSink interface {
	Create(req models.CreateNotificationRequest) (models.Notification, error)
	Cleanup() int
}

// AnalysisHistory supplies past analyses for similar-failure linking and keeps new ones.
type AnalysisHistory interface {
	History() []models.FailureAnalysis
	Record(analysis models.FailureAnalysis)
}

// MonitorOptions tunes the poll loop.
type MonitorOptions struct {
	Jobs            []string
	PollInterval    time.Duration
	CleanupInterval time.Duration
	MaxConcurrent   int
	LogTailLines    int
	HistoryBuilds   int
	SlowBuildScore  float64
	// NotifyOnStart raises notifications for the builds seen on the first poll
	// instead of only recording them as the baseline.
	NotifyOnStart bool
}

type jobState struct {
	lastBuild  int
	lastResult string
}

// Monitor polls Jenkins and turns finished builds into notifications.
type Monitor struct {
	logger     *slog.Logger
	jenkins    JenkinsAPI
	target     repo.Target
	sink       NotificationSink
	history    AnalysisHistory
	classifier *Classifier
	logs       *extractors.LogsExtractor
	durations  *extractors.DurationExtractor
	opts       MonitorOptions

	mu    sync.Mutex
	state map[string]jobState
}

// NewMonitor constructs a Jenkins monitor.
func NewMonitor(logger *slog.Logger, jenkins JenkinsAPI, target repo.Target, sink NotificationSink, classifier *Classifier, history AnalysisHistory, opts MonitorOptions) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = NewClassifier(logger, nil)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Hour
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.HistoryBuilds <= 0 {
		opts.HistoryBuilds = 10
	}
	return &Monitor{
		logger:     logger,
		jenkins:    jenkins,
		target:     target,
		sink:       sink,
		history:    history,
		classifier: classifier,
		logs:       extractors.NewLogsExtractor(0),
		durations:  extractors.NewDurationExtractor(),
		opts:       opts,
		state:      make(map[string]jobState),
	}
}

// Run polls until ctx is cancelled, pruning expired notifications on its own interval.
func (m *Monitor) Run(ctx context.Context) error {
	poll := time.NewTicker(m.opts.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(m.opts.CleanupInterval)
	defer cleanup.Stop()

	m.pollAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			m.pollAndLog(ctx)
		case <-cleanup.C:
			if removed := m.sink.Cleanup(); removed > 0 {
				m.logger.Info("expired notifications removed", slog.Int("count", removed))
			}
		}
	}
}

func (m *Monitor) pollAndLog(ctx context.Context) {
	created, err := m.PollOnce(ctx)
	if err != nil {
		m.logger.Warn("jenkins poll failed", slog.Any("error", err))
		return
	}
	m.logger.Debug("jenkins poll complete", slog.Int("notifications", created))
}

// PollOnce checks every monitored job once and returns the number of notifications raised.
// Failures on individual jobs are logged and do not abort the poll.
func (m *Monitor) PollOnce(ctx context.Context) (int, error) {
	jobs, err := m.jobNames(ctx)
	if err != nil {
		return 0, err
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.MaxConcurrent)
	for _, job := range jobs {
		g.Go(func() error {
			n, err := m.pollJob(gctx, job)
			if err != nil {
				m.logger.Warn("job poll failed", slog.String("job", job), slog.Any("error", err))
				return nil
			}
			created.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()
	return int(created.Load()), ctx.Err()
}

func (m *Monitor) jobNames(ctx context.Context) ([]string, error) {
	if len(m.opts.Jobs) > 0 {
		return m.opts.Jobs, nil
	}
	jobs, err := m.jenkins.ListJobs(ctx, m.target)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.Status == "inactive" {
			continue
		}
		names = append(names, firstNonBlank(job.FullName, job.Name))
	}
	return names, nil
}

func (m *Monitor) pollJob(ctx context.Context, job string) (int, error) {
	builds, err := m.jenkins.LastBuilds(ctx, m.target, job, m.opts.HistoryBuilds)
	if err != nil {
		return 0, err
	}

	finished := make([]repo.Build, 0, len(builds))
	for _, b := range builds {
		if b.Finished() {
			finished = append(finished, b)
		}
	}
	if len(finished) == 0 {
		return 0, nil
	}
	latest := finished[0]

	m.mu.Lock()
	prev, seen := m.state[job]
	m.state[job] = jobState{lastBuild: latest.Number, lastResult: latest.Result}
	m.mu.Unlock()

	if seen && latest.Number <= prev.lastBuild {
		return 0, nil
	}
	if !seen && !m.opts.NotifyOnStart {
		return 0, nil
	}

	previousResult := prev.lastResult
	if !seen && len(finished) > 1 {
		previousResult = finished[1].Result
	}

	requests := make([]models.CreateNotificationRequest, 0, 2)
	switch latest.Result {
	case repo.ResultFailure:
		requests = append(requests, m.failureNotification(ctx, job, latest))
	case repo.ResultUnstable:
		requests = append(requests, unstableNotification(job, latest))
	case repo.ResultSuccess:
		if previousResult == repo.ResultFailure {
			requests = append(requests, recoveryNotification(job, latest))
		}
	}
	if req, ok := m.slowBuildNotification(job, latest, finished[1:]); ok {
		requests = append(requests, req)
	}

	created := 0
	for _, req := range requests {
		if _, err := m.sink.Create(req); err != nil {
			m.logger.Warn("notification rejected", slog.String("job", job), slog.Any("error", err))
			continue
		}
		created++
	}
	return created, nil
}

func (m *Monitor) failureNotification(ctx context.Context, job string, build repo.Build) models.CreateNotificationRequest {
	lines, err := m.jenkins.ConsoleLog(ctx, m.target, job, build.Number, m.opts.LogTailLines)
	if err != nil {
		m.logger.Warn("console log unavailable", slog.String("job", job), slog.Int("build", build.Number), slog.Any("error", err))
	}
	summary := m.logs.Extract(lines)
	reason := summary.FailureReason
	if reason == "" {
		reason = fmt.Sprintf("Build #%d failed", build.Number)
	}

	var history []models.FailureAnalysis
	if m.history != nil {
		history = m.history.History()
	}
	analysis := m.classifier.Analyze(job, reason, summary.ErrorLines, summary.FailedStages, history)
	if m.history != nil {
		m.history.Record(analysis)
	}

	stage := ""
	if len(summary.FailedStages) > 0 {
		stage = summary.FailedStages[0]
	}
	return models.CreateNotificationRequest{
		Type:         models.NotificationPipelineFailure,
		Title:        fmt.Sprintf("%s #%d failed", job, build.Number),
		Message:      fmt.Sprintf("%s: %s", analysis.Category.Name, reason),
		Severity:     analysis.Category.Severity,
		PipelineID:   job,
		PipelineName: job,
		Stage:        stage,
		Metadata: map[string]any{
			"buildNumber": build.Number,
			"buildUrl":    build.URL,
			"category":    analysis.Category.ID,
			"confidence":  analysis.Confidence,
			"analysisId":  analysis.ID,
		},
	}
}

func unstableNotification(job string, build repo.Build) models.CreateNotificationRequest {
	return models.CreateNotificationRequest{
		Type:         models.NotificationBuildUnstable,
		Title:        fmt.Sprintf("%s #%d is unstable", job, build.Number),
		Message:      "Build finished with test failures or quality gate warnings",
		Severity:     models.SeverityMedium,
		PipelineID:   job,
		PipelineName: job,
		Metadata:     buildMetadata(build),
	}
}

func recoveryNotification(job string, build repo.Build) models.CreateNotificationRequest {
	return models.CreateNotificationRequest{
		Type:         models.NotificationPipelineSuccess,
		Title:        fmt.Sprintf("%s #%d recovered", job, build.Number),
		Message:      "Build succeeded after a previous failure",
		Severity:     models.SeverityLow,
		PipelineID:   job,
		PipelineName: job,
		Metadata:     buildMetadata(build),
	}
}

func (m *Monitor) slowBuildNotification(job string, latest repo.Build, earlier []repo.Build) (models.CreateNotificationRequest, bool) {
	baseline := make([]extractors.DurationSample, 0, len(earlier))
	for _, b := range earlier {
		baseline = append(baseline, extractors.DurationSample{Build: b.Number, Duration: b.Duration, Timestamp: b.Timestamp})
	}
	candidate := extractors.DurationSample{Build: latest.Number, Duration: latest.Duration, Timestamp: latest.Timestamp}
	anomaly, ok := m.durations.Score(candidate, baseline, m.opts.SlowBuildScore)
	if !ok {
		return models.CreateNotificationRequest{}, false
	}

	severity := models.SeverityMedium
	if anomaly.Score >= 2*anomaly.Threshold {
		severity = models.SeverityHigh
	}
	metadata := buildMetadata(latest)
	metadata["baselineSeconds"] = anomaly.Baseline.Seconds()
	metadata["durationSeconds"] = anomaly.Duration.Seconds()
	metadata["zScore"] = anomaly.Score
	return models.CreateNotificationRequest{
		Type:  models.NotificationPerformanceDegradation,
		Title: fmt.Sprintf("%s #%d ran slower than usual", job, latest.Number),
		Message: fmt.Sprintf("Build took %s against a baseline of %s",
			anomaly.Duration.Round(time.Second), anomaly.Baseline.Round(time.Second)),
		Severity:     severity,
		PipelineID:   job,
		PipelineName: job,
		Metadata:     metadata,
	}, true
}

func buildMetadata(build repo.Build) map[string]any {
	return map[string]any{
		"buildNumber": build.Number,
		"buildUrl":    build.URL,
		"result":      build.Result,
		"displayName": firstNonBlank(build.DisplayName, "#"+strconv.Itoa(build.Number)),
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
