package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/time/rate"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/repo"
	"github.com/miradorstack/pipeline-rca/internal/services"
)

func newTestHandler(t *testing.T, limiter *rate.Limiter) (*HTTPHandler, *services.PipelineService) {
	t.Helper()
	svc := services.NewPipelineService(nil, nil, nil, nil, nil, nil, services.Options{})
	return NewHTTPHandler(nil, svc, NewHub(nil, 2), limiter), svc
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestClassifyEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/failures/classify", models.ClassifyRequest{
		PipelineID:    "api",
		FailureReason: "npm ERR! 404 Not Found",
		Logs:          []string{"could not resolve dependencies"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[models.ClassifyResponse](t, rec)
	if resp.Analysis.Category.ID != "dependency" || len(resp.SuggestedActions) == 0 {
		t.Fatalf("unexpected classify response %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/api/failures/classify", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if len(body.Fields) != 2 {
		t.Fatalf("expected missing fields listed, got %+v", body)
	}
}

func TestStatsEndpointRejectsMalformedHistory(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/api/failures/stats?historicalFailures="+url.QueryEscape("[{"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/failures/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stats := decode[models.FailureStats](t, rec)
	if stats.TotalFailures != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func TestNotificationLifecycleEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/notifications", models.CreateNotificationRequest{
		Type:         models.NotificationPipelineFailure,
		Title:        "deploy failed",
		Message:      "exit 1",
		Severity:     models.SeverityCritical,
		PipelineName: "Deploy Prod",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Notification](t, rec)

	rec = do(t, h, http.MethodGet, "/api/notifications/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for detail, got %d", rec.Code)
	}
	if rec = do(t, h, http.MethodGet, "/api/notifications/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/notifications/action", models.NotificationActionRequest{Action: "assign", NotificationID: created.ID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for assign without assignee, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/notifications/action", models.NotificationActionRequest{Action: "resolve", NotificationID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/notifications/action", models.NotificationActionRequest{Action: "resolve", NotificationID: created.ID, UserID: "sam"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/notifications?resolved=true&tags=urgent,deploy_prod&limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[models.NotificationListResponse](t, rec)
	if list.Total != 1 || list.Notifications[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	if rec = do(t, h, http.MethodGet, "/api/notifications?acknowledged=maybe", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad bool filter, got %d", rec.Code)
	}
	if rec = do(t, h, http.MethodPost, "/api/notifications/cleanup", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for cleanup, got %d", rec.Code)
	}
}

func TestKnowledgeBaseEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/api/knowledge-base?action=search&query=docker", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[models.KnowledgeBaseResponse](t, rec)
	if resp.Total == nil || *resp.Total == 0 {
		t.Fatalf("expected docker solutions, got %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/api/knowledge-base?action=recognize-pattern", map[string]string{"text": "java.lang.OutOfMemoryError: Java heap space"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	matches := decode[models.KnowledgeBaseResponse](t, rec)
	if len(matches.Matches) == 0 {
		t.Fatalf("expected pattern matches")
	}

	if rec = do(t, h, http.MethodGet, "/api/knowledge-base?action=nope", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	h, _ := newTestHandler(t, rate.NewLimiter(0, 1))

	first := do(t, h, http.MethodPost, "/api/notifications/cleanup", nil)
	second := do(t, h, http.MethodPost, "/api/notifications/cleanup", nil)
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 200 then 429, got %d then %d", first.Code, second.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, got %d", rec.Code)
	}
}

type stubJenkins struct {
	services.JenkinsClient
	target repo.Target
	job    string
}

func (s *stubJenkins) LastBuilds(_ context.Context, t repo.Target, job string, _ int) ([]repo.Build, error) {
	s.target, s.job = t, job
	return []repo.Build{{Number: 3, Result: repo.ResultSuccess}}, nil
}

func (s *stubJenkins) TriggerBuild(_ context.Context, t repo.Target, job string) error {
	s.target, s.job = t, job
	return nil
}

func TestJenkinsRoutesUseHeaderTarget(t *testing.T) {
	jenkins := &stubJenkins{}
	svc := services.NewPipelineService(nil, nil, nil, nil, jenkins, nil, services.Options{})
	h := NewHTTPHandler(nil, svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jenkins/builds?job=api&limit=5", nil)
	req.Header.Set(HeaderJenkinsURL, "http://jenkins.local")
	req.Header.Set(HeaderJenkinsToken, "token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if jenkins.target.BaseURL != "http://jenkins.local" || jenkins.target.APIToken != "token" || jenkins.job != "api" {
		t.Fatalf("unexpected upstream call %+v", jenkins)
	}

	if rec := do(t, h, http.MethodGet, "/api/jenkins/builds?job=api", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a target, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/jenkins/restart", bytes.NewBufferString(`{"pipelineId":"web"}`))
	req.Header.Set(HeaderJenkinsURL, "http://jenkins.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted || jenkins.job != "web" {
		t.Fatalf("expected restart of web, got %d (%s)", rec.Code, jenkins.job)
	}
}
