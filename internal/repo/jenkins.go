package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/pipeline-rca/internal/cache"
	"github.com/miradorstack/pipeline-rca/internal/metrics"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

const (
	maxErrorBody      = 512
	defaultMaxRetries = 3
	buildTree         = "number,url,result,building,timestamp,duration,estimatedDuration,displayName"
)

// Target addresses a Jenkins server. Credentials travel with every call and are never stored.
type Target struct {
	BaseURL  string
	Username string
	APIToken string
}

// cacheKey scopes cached responses to the server and the credentials used to fetch them.
func (t Target) cacheKey(suffix string) string {
	return "jenkins:" + strings.TrimRight(t.BaseURL, "/") + ":" + t.credentialDigest() + ":" + suffix
}

func (t Target) credentialDigest() string {
	sum := sha256.Sum256([]byte(t.Username + ":" + t.APIToken))
	return hex.EncodeToString(sum[:])
}

// Job is a Jenkins job summary.
type Job struct {
	Name      string `json:"name"`
	FullName  string `json:"fullName"`
	URL       string `json:"url"`
	Color     string `json:"color"`
	Status    string `json:"status"`
	LastBuild *Build `json:"lastBuild,omitempty"`
}

// Build is one Jenkins build run.
type Build struct {
	Number            int           `json:"number"`
	URL               string        `json:"url"`
	Result            string        `json:"result"`
	Building          bool          `json:"building"`
	Timestamp         time.Time     `json:"timestamp"`
	Duration          time.Duration `json:"duration"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	DisplayName       string        `json:"displayName"`
}

// Finished reports whether the build has a final result.
func (b Build) Finished() bool {
	return !b.Building && b.Result != ""
}

// QueueItem is a pending build in the Jenkins queue.
type QueueItem struct {
	ID           int64     `json:"id"`
	JobName      string    `json:"jobName"`
	JobURL       string    `json:"jobUrl"`
	Why          string    `json:"why"`
	Blocked      bool      `json:"blocked"`
	Stuck        bool      `json:"stuck"`
	InQueueSince time.Time `json:"inQueueSince"`
}

// Stage is a pipeline stage from the workflow API.
type Stage struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
}

// Build results reported by Jenkins.
const (
	ResultSuccess  = "SUCCESS"
	ResultFailure  = "FAILURE"
	ResultUnstable = "UNSTABLE"
	ResultAborted  = "ABORTED"
)

type buildJSON struct {
	Number            int    `json:"number"`
	URL               string `json:"url"`
	Result            string `json:"result"`
	Building          bool   `json:"building"`
	Timestamp         int64  `json:"timestamp"`
	Duration          int64  `json:"duration"`
	EstimatedDuration int64  `json:"estimatedDuration"`
	DisplayName       string `json:"displayName"`
}

func (b buildJSON) toBuild() Build {
	return Build{
		Number:            b.Number,
		URL:               b.URL,
		Result:            b.Result,
		Building:          b.Building,
		Timestamp:         utils.FromMillis(b.Timestamp),
		Duration:          time.Duration(b.Duration) * time.Millisecond,
		EstimatedDuration: time.Duration(b.EstimatedDuration) * time.Millisecond,
		DisplayName:       b.DisplayName,
	}
}

// JenkinsClient wraps the Jenkins JSON API.
type JenkinsClient struct {
	httpClient  *http.Client
	cache       cache.Provider
	cacheTTL    time.Duration
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// NewJenkinsClient constructs a client. provider may be nil to disable job list caching.
func NewJenkinsClient(timeout time.Duration, provider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *JenkinsClient {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JenkinsClient{
		httpClient:  &http.Client{Timeout: timeout},
		cache:       provider,
		cacheTTL:    cacheTTL,
		maxRetries:  defaultMaxRetries,
		baseBackoff: time.Second,
		logger:      logger,
	}
}

// ListJobs returns the top-level jobs with their last build.
func (c *JenkinsClient) ListJobs(ctx context.Context, t Target) ([]Job, error) {
	key := t.cacheKey("jobs")
	var cached []Job
	if err := cache.GetJSON(ctx, c.cache, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("job cache read failed", slog.Any("error", err))
	}

	query := url.Values{"tree": {"jobs[name,fullName,url,color,lastBuild[" + buildTree + "]]"}}
	var response struct {
		Jobs []struct {
			Name      string     `json:"name"`
			FullName  string     `json:"fullName"`
			URL       string     `json:"url"`
			Color     string     `json:"color"`
			LastBuild *buildJSON `json:"lastBuild"`
		} `json:"jobs"`
	}
	if err := c.getJSON(ctx, t, "list jobs", "/api/json", query, &response); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(response.Jobs))
	for _, j := range response.Jobs {
		job := Job{
			Name:     j.Name,
			FullName: firstNonEmpty(j.FullName, j.Name),
			URL:      j.URL,
			Color:    j.Color,
			Status:   statusFromColor(j.Color),
		}
		if j.LastBuild != nil {
			b := j.LastBuild.toBuild()
			job.LastBuild = &b
		}
		jobs = append(jobs, job)
	}

	if c.cacheTTL > 0 {
		if err := cache.SetJSON(ctx, c.cache, key, jobs, c.cacheTTL); err != nil {
			c.logger.Warn("job cache write failed", slog.Any("error", err))
		}
	}
	return jobs, nil
}

// GetBuild returns a build; number <= 0 selects the last build.
func (c *JenkinsClient) GetBuild(ctx context.Context, t Target, job string, number int) (Build, error) {
	var response buildJSON
	query := url.Values{"tree": {buildTree}}
	if err := c.getJSON(ctx, t, "get build", jobPath(job)+"/"+buildRef(number)+"/api/json", query, &response); err != nil {
		return Build{}, err
	}
	return response.toBuild(), nil
}

// LastBuilds returns up to limit most recent builds, newest first.
func (c *JenkinsClient) LastBuilds(ctx context.Context, t Target, job string, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{"tree": {fmt.Sprintf("builds[%s]{0,%d}", buildTree, limit)}}
	var response struct {
		Builds []buildJSON `json:"builds"`
	}
	if err := c.getJSON(ctx, t, "list builds", jobPath(job)+"/api/json", query, &response); err != nil {
		return nil, err
	}
	builds := make([]Build, 0, len(response.Builds))
	for _, b := range response.Builds {
		builds = append(builds, b.toBuild())
	}
	return builds, nil
}

// ConsoleLog returns the last tailLines lines of a build's console output; tailLines <= 0 returns everything.
func (c *JenkinsClient) ConsoleLog(ctx context.Context, t Target, job string, number, tailLines int) ([]string, error) {
	body, _, err := c.do(ctx, t, "console log", http.MethodGet, jobPath(job)+"/"+buildRef(number)+"/consoleText", nil, nil, true)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}, nil
	}
	if tailLines > 0 && len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return lines, nil
}

// Queue returns the pending build queue.
func (c *JenkinsClient) Queue(ctx context.Context, t Target) ([]QueueItem, error) {
	var response struct {
		Items []struct {
			ID   int64 `json:"id"`
			Task struct {
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"task"`
			Why          string `json:"why"`
			Blocked      bool   `json:"blocked"`
			Stuck        bool   `json:"stuck"`
			InQueueSince int64  `json:"inQueueSince"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, t, "queue", "/queue/api/json", nil, &response); err != nil {
		return nil, err
	}
	items := make([]QueueItem, 0, len(response.Items))
	for _, it := range response.Items {
		items = append(items, QueueItem{
			ID:           it.ID,
			JobName:      it.Task.Name,
			JobURL:       it.Task.URL,
			Why:          it.Why,
			Blocked:      it.Blocked,
			Stuck:        it.Stuck,
			InQueueSince: utils.FromMillis(it.InQueueSince),
		})
	}
	return items, nil
}

// Stages returns pipeline stages for a build from the workflow API.
func (c *JenkinsClient) Stages(ctx context.Context, t Target, job string, number int) ([]Stage, error) {
	var response struct {
		Stages []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Status          string `json:"status"`
			StartTimeMillis int64  `json:"startTimeMillis"`
			DurationMillis  int64  `json:"durationMillis"`
		} `json:"stages"`
	}
	if err := c.getJSON(ctx, t, "stages", jobPath(job)+"/"+buildRef(number)+"/wfapi/describe", nil, &response); err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(response.Stages))
	for _, s := range response.Stages {
		stages = append(stages, Stage{
			ID:        s.ID,
			Name:      s.Name,
			Status:    s.Status,
			StartTime: utils.FromMillis(s.StartTimeMillis),
			Duration:  time.Duration(s.DurationMillis) * time.Millisecond,
		})
	}
	return stages, nil
}

// TriggerBuild queues a new build of job, sending a CSRF crumb when the server issues one.
func (c *JenkinsClient) TriggerBuild(ctx context.Context, t Target, job string) error {
	headers := http.Header{}
	var crumb struct {
		Crumb             string `json:"crumb"`
		CrumbRequestField string `json:"crumbRequestField"`
	}
	err := c.getJSON(ctx, t, "crumb", "/crumbIssuer/api/json", nil, &crumb)
	var upstream *utils.UpstreamError
	switch {
	case err == nil && crumb.CrumbRequestField != "":
		headers.Set(crumb.CrumbRequestField, crumb.Crumb)
	case errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound:
		// crumb issuer disabled
	case err != nil:
		return err
	}

	if _, _, err := c.do(ctx, t, "trigger build", http.MethodPost, jobPath(job)+"/build", nil, headers, false); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, t.cacheKey("jobs")); err != nil {
		c.logger.Warn("job cache invalidation failed", slog.Any("error", err))
	}
	c.logger.Info("build triggered", slog.String("job", job))
	return nil
}

func (c *JenkinsClient) getJSON(ctx context.Context, t Target, op, p string, query url.Values, out any) error {
	body, _, err := c.do(ctx, t, op, http.MethodGet, p, query, nil, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &utils.UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// do issues one request. Retryable requests are retried on 429 and 5xx with
// exponential backoff, honouring Retry-After.
func (c *JenkinsClient) do(ctx context.Context, t Target, op, method, p string, query url.Values, headers http.Header, retryable bool) ([]byte, http.Header, error) {
	endpoint, err := resolve(t.BaseURL, p, query)
	if err != nil {
		return nil, nil, &utils.UpstreamError{Op: op, Err: err}
	}

	attempts := 1
	if retryable {
		attempts += c.maxRetries
	}

	var lastErr *utils.UpstreamError
	var retryAfter string
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.backoff(attempt, retryAfter))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, nil, &utils.UpstreamError{Op: op, Err: ctx.Err()}
			case <-timer.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return nil, nil, &utils.UpstreamError{Op: op, Err: err}
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if t.Username != "" || t.APIToken != "" {
			req.SetBasicAuth(t.Username, t.APIToken)
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.ObserveUpstream(time.Since(start), metrics.OutcomeError)
			return nil, nil, &utils.UpstreamError{Op: op, Err: err}
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			metrics.ObserveUpstream(time.Since(start), metrics.OutcomeError)
			return nil, nil, &utils.UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.ObserveUpstream(time.Since(start), metrics.OutcomeSuccess)
			return body, resp.Header, nil
		}
		metrics.ObserveUpstream(time.Since(start), metrics.OutcomeError)

		lastErr = &utils.UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, nil, lastErr
		}
		retryAfter = resp.Header.Get("Retry-After")
		c.logger.Debug("jenkins request retrying",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempt", attempt+1),
		)
	}
	return nil, nil, lastErr
}

func (c *JenkinsClient) backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return c.baseBackoff * time.Duration(1<<(attempt-1))
}

func resolve(baseURL, p string, query url.Values) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return "", fmt.Errorf("jenkins base URL not configured")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("jenkins base URL %q must be absolute", baseURL)
	}
	raw := u.String() + p
	if len(query) > 0 {
		raw += "?" + query.Encode()
	}
	return raw, nil
}

// jobPath maps "folder/job" onto "/job/folder/job/job".
func jobPath(name string) string {
	var b strings.Builder
	for _, segment := range strings.Split(strings.Trim(name, "/"), "/") {
		if segment == "" {
			continue
		}
		b.WriteString("/job/")
		b.WriteString(url.PathEscape(segment))
	}
	return b.String()
}

func buildRef(number int) string {
	if number <= 0 {
		return "lastBuild"
	}
	return strconv.Itoa(number)
}

func statusFromColor(color string) string {
	base, building := strings.CutSuffix(color, "_anime")
	if building {
		return "running"
	}
	switch base {
	case "blue", "green":
		return "success"
	case "red":
		return "failure"
	case "yellow":
		return "unstable"
	case "aborted":
		return "aborted"
	case "disabled", "grey", "notbuilt":
		return "inactive"
	default:
		return "unknown"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

