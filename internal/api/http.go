package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/services"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

const maxBodyBytes = 1 << 20

// Headers that override the configured Jenkins target per request.
const (
	HeaderJenkinsURL   = "X-Jenkins-Url"
	HeaderJenkinsUser  = "X-Jenkins-User"
	HeaderJenkinsToken = "X-Jenkins-Token"
)

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// HTTPHandler serves the JSON API.
type HTTPHandler struct {
	logger  *slog.Logger
	svc     *services.PipelineService
	hub     *Hub
	limiter *rate.Limiter
	mux     *http.ServeMux
}

// NewHTTPHandler builds the HTTP routes. limiter throttles mutating routes and
// may be nil; hub may be nil to disable the event stream.
func NewHTTPHandler(logger *slog.Logger, svc *services.PipelineService, hub *Hub, limiter *rate.Limiter) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPHandler{logger: logger, svc: svc, hub: hub, limiter: limiter, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /healthz", h.healthz)

	h.mux.HandleFunc("POST /api/failures/classify", h.limited(h.classify))
	h.mux.HandleFunc("GET /api/failures/stats", h.failureStats)
	h.mux.HandleFunc("GET /api/failures/stats/latest", h.latestStats)

	h.mux.HandleFunc("POST /api/notifications", h.limited(h.createNotification))
	h.mux.HandleFunc("GET /api/notifications", h.listNotifications)
	h.mux.HandleFunc("GET /api/notifications/{id}", h.getNotification)
	h.mux.HandleFunc("POST /api/notifications/action", h.limited(h.notificationAction))
	h.mux.HandleFunc("POST /api/notifications/cleanup", h.limited(h.cleanupNotifications))

	h.mux.HandleFunc("GET /api/knowledge-base", h.knowledgeBase)
	h.mux.HandleFunc("POST /api/knowledge-base", h.limited(h.knowledgeBase))

	h.mux.HandleFunc("GET /api/jenkins/jobs", h.jenkinsJobs)
	h.mux.HandleFunc("GET /api/jenkins/builds", h.jenkinsBuilds)
	h.mux.HandleFunc("GET /api/jenkins/log", h.jenkinsLog)
	h.mux.HandleFunc("GET /api/jenkins/queue", h.jenkinsQueue)
	h.mux.HandleFunc("GET /api/jenkins/stages", h.jenkinsStages)
	h.mux.HandleFunc("POST /api/jenkins/restart", h.limited(h.jenkinsRestart))

	if hub != nil {
		h.mux.Handle("GET /api/events", hub)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPHandler) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

func (h *HTTPHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) classify(w http.ResponseWriter, r *http.Request) {
	var req models.ClassifyRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.Classify(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) failureStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.FailureStats(r.Context(), r.URL.Query().Get("historicalFailures"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) latestStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.LatestStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) createNotification(w http.ResponseWriter, r *http.Request) {
	var req models.CreateNotificationRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.CreateNotification(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *HTTPHandler) listNotifications(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ListNotifications(r.Context(), filters))
}

func (h *HTTPHandler) getNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetNotification(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *HTTPHandler) notificationAction(w http.ResponseWriter, r *http.Request) {
	var req models.NotificationActionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.NotificationAction(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) cleanupNotifications(w http.ResponseWriter, r *http.Request) {
	removed := h.svc.CleanupNotifications(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *HTTPHandler) knowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req models.KnowledgeBaseRequest
	if r.Method == http.MethodPost {
		if err := decodeBody(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	mergeKnowledgeQuery(&req, r)
	resp, err := h.svc.KnowledgeBase(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func mergeKnowledgeQuery(req *models.KnowledgeBaseRequest, r *http.Request) {
	q := r.URL.Query()
	set := func(dst *string, key string) {
		if v := q.Get(key); v != "" {
			*dst = v
		}
	}
	set(&req.Action, "action")
	set(&req.Query, "query")
	set(&req.Category, "category")
	set(&req.FailureReason, "failureReason")
	set(&req.SolutionID, "solutionId")
	set(&req.Text, "text")
	if v := q.Get("severity"); v != "" {
		req.Severity = models.Severity(v)
	}
	if logs := q["logs"]; len(logs) > 0 {
		req.Logs = logs
	}
}

func (h *HTTPHandler) jenkinsJobs(w http.ResponseWriter, r *http.Request) {
	q, err := jenkinsQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jobs, err := h.svc.Jobs(r.Context(), q)
	h.writeResult(w, r, jobs, err)
}

func (h *HTTPHandler) jenkinsBuilds(w http.ResponseWriter, r *http.Request) {
	q, err := jenkinsQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	builds, err := h.svc.Builds(r.Context(), q)
	h.writeResult(w, r, builds, err)
}

func (h *HTTPHandler) jenkinsLog(w http.ResponseWriter, r *http.Request) {
	q, err := jenkinsQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lines, err := h.svc.ConsoleLog(r.Context(), q)
	h.writeResult(w, r, map[string]any{"job": q.Job, "build": q.Build, "lines": lines}, err)
}

func (h *HTTPHandler) jenkinsQueue(w http.ResponseWriter, r *http.Request) {
	q, err := jenkinsQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.svc.Queue(r.Context(), q)
	h.writeResult(w, r, items, err)
}

func (h *HTTPHandler) jenkinsStages(w http.ResponseWriter, r *http.Request) {
	q, err := jenkinsQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	stages, err := h.svc.Stages(r.Context(), q)
	h.writeResult(w, r, stages, err)
}

func (h *HTTPHandler) jenkinsRestart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PipelineID string `json:"pipelineId"`
		Job        string `json:"job"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := jenkinsQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if q.Job == "" {
		q.Job = firstNonEmpty(body.Job, body.PipelineID)
	}
	if err := h.svc.Restart(r.Context(), q); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job": q.Job})
}

func jenkinsQuery(r *http.Request) (services.JenkinsQuery, error) {
	q := r.URL.Query()
	build, err := intParam(q.Get("build"), "build")
	if err != nil {
		return services.JenkinsQuery{}, err
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		return services.JenkinsQuery{}, err
	}
	tail, err := intParam(q.Get("tail"), "tail")
	if err != nil {
		return services.JenkinsQuery{}, err
	}
	return services.JenkinsQuery{
		BaseURL:  r.Header.Get(HeaderJenkinsURL),
		Username: r.Header.Get(HeaderJenkinsUser),
		APIToken: r.Header.Get(HeaderJenkinsToken),
		Job:      q.Get("job"),
		Build:    build,
		Limit:    limit,
		Tail:     tail,
	}, nil
}

func parseFilters(r *http.Request) (models.NotificationFilters, error) {
	q := r.URL.Query()
	filters := models.NotificationFilters{
		Type:       models.NotificationType(q.Get("type")),
		Severity:   models.Severity(q.Get("severity")),
		PipelineID: q.Get("pipelineId"),
		Assignee:   q.Get("assignee"),
	}
	for _, raw := range q["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filters.Tags = append(filters.Tags, tag)
			}
		}
	}

	var err error
	if filters.Acknowledged, err = boolParam(q.Get("acknowledged"), "acknowledged"); err != nil {
		return filters, err
	}
	if filters.Resolved, err = boolParam(q.Get("resolved"), "resolved"); err != nil {
		return filters, err
	}
	if filters.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return filters, err
	}
	if filters.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return filters, err
	}
	return filters, nil
}

func boolParam(raw, field string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &utils.MalformedInputError{Field: field, Err: err}
	}
	return &v, nil
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		if err == nil {
			err = errors.New("must not be negative")
		}
		return 0, &utils.MalformedInputError{Field: field, Err: err}
	}
	return v, nil
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &utils.MalformedInputError{Field: "body", Err: err}
	}
	return nil
}

func (h *HTTPHandler) writeResult(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	code := http.StatusInternalServerError
	switch {
	case utils.IsValidation(err), utils.IsMalformed(err):
		code = http.StatusBadRequest
	case utils.IsNotFound(err):
		code = http.StatusNotFound
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
