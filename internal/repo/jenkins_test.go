package repo

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miradorstack/pipeline-rca/internal/utils"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestJenkins(rt roundTripFunc) (*JenkinsClient, *stubCache) {
	stub := newStubCache()
	client := NewJenkinsClient(time.Second, stub, time.Minute, nil)
	client.httpClient = newTestClient(rt)
	client.baseBackoff = time.Millisecond
	return client, stub
}

var target = Target{BaseURL: "http://jenkins.local/", Username: "admin", APIToken: "token"}

func TestListJobsCachesResult(t *testing.T) {
	var calls int32
	client, _ := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if req.URL.Path != "/api/json" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		user, pass, ok := req.BasicAuth()
		if !ok || user != "admin" || pass != "token" {
			t.Fatalf("expected basic auth, got %q %q", user, pass)
		}
		return jsonResponse(http.StatusOK, `{"jobs":[
			{"name":"api","url":"http://jenkins.local/job/api/","color":"red","lastBuild":{"number":12,"result":"FAILURE","building":false,"timestamp":1714564800000,"duration":90000}},
			{"name":"web","url":"http://jenkins.local/job/web/","color":"blue_anime"}
		]}`), nil
	})

	for i := 0; i < 2; i++ {
		jobs, err := client.ListJobs(context.Background(), target)
		if err != nil {
			t.Fatalf("list jobs: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		if jobs[0].Status != "failure" || jobs[1].Status != "running" {
			t.Fatalf("unexpected statuses %s %s", jobs[0].Status, jobs[1].Status)
		}
		if jobs[0].LastBuild == nil || jobs[0].LastBuild.Duration != 90*time.Second || jobs[0].LastBuild.Timestamp.IsZero() {
			t.Fatalf("unexpected last build %+v", jobs[0].LastBuild)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected cached second call, got %d requests", calls)
	}
}

func TestListJobsCacheDoesNotServeOtherCredentials(t *testing.T) {
	var calls int32
	client, stub := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if _, pass, _ := req.BasicAuth(); pass != "token" {
			return jsonResponse(http.StatusUnauthorized, "invalid credentials"), nil
		}
		return jsonResponse(http.StatusOK, `{"jobs":[{"name":"secret-job","color":"blue"}]}`), nil
	})

	if _, err := client.ListJobs(context.Background(), target); err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if keys := stub.keys(); len(keys) != 1 || keys[0] != target.cacheKey("jobs") {
		t.Fatalf("unexpected cache keys %v", keys)
	}

	wrong := target
	wrong.APIToken = "wrong"
	jobs, err := client.ListJobs(context.Background(), wrong)
	if !utils.IsUpstream(err) {
		t.Fatalf("expected upstream error for wrong token, got jobs %+v err %v", jobs, err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 in error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected wrong token to reach Jenkins, got %d requests", calls)
	}
	if stub.sets != 1 {
		t.Fatalf("expected failed listing not to be cached, got %d writes", stub.sets)
	}
}

func TestGetBuildRetriesServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		if req.URL.Path != "/job/folder/job/api/lastBuild/api/json" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		if n < 3 {
			return jsonResponse(http.StatusBadGateway, "bad gateway"), nil
		}
		return jsonResponse(http.StatusOK, `{"number":7,"result":"SUCCESS","duration":1000}`), nil
	})

	build, err := client.GetBuild(context.Background(), target, "folder/api", 0)
	if err != nil {
		t.Fatalf("get build: %v", err)
	}
	if build.Number != 7 || !build.Finished() || build.Duration != time.Second {
		t.Fatalf("unexpected build %+v", build)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestNonRetryableStatusReturnsUpstreamError(t *testing.T) {
	var calls int32
	client, _ := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusForbidden, "nope"), nil
	})

	_, err := client.Queue(context.Background(), target)
	if !utils.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries for 403, got %d", calls)
	}
}

func TestConsoleLogTail(t *testing.T) {
	client, _ := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/job/api/12/consoleText" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, "one\r\ntwo\nthree\nfour\n"), nil
	})
	lines, err := client.ConsoleLog(context.Background(), target, "api", 12, 2)
	if err != nil {
		t.Fatalf("console: %v", err)
	}
	if len(lines) != 2 || lines[0] != "three" || lines[1] != "four" {
		t.Fatalf("unexpected tail %v", lines)
	}
}

func TestStagesAndQueueDecode(t *testing.T) {
	client, _ := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/job/api/3/wfapi/describe":
			return jsonResponse(http.StatusOK, `{"stages":[{"id":"6","name":"Build","status":"FAILED","startTimeMillis":1714564800000,"durationMillis":2500}]}`), nil
		case "/queue/api/json":
			return jsonResponse(http.StatusOK, `{"items":[{"id":44,"task":{"name":"web","url":"u"},"why":"Waiting for executor","stuck":true,"inQueueSince":1714564800000}]}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})

	stages, err := client.Stages(context.Background(), target, "api", 3)
	if err != nil || len(stages) != 1 || stages[0].Name != "Build" || stages[0].Duration != 2500*time.Millisecond {
		t.Fatalf("unexpected stages %+v %v", stages, err)
	}
	queue, err := client.Queue(context.Background(), target)
	if err != nil || len(queue) != 1 || queue[0].JobName != "web" || !queue[0].Stuck {
		t.Fatalf("unexpected queue %+v %v", queue, err)
	}
}

func TestTriggerBuildSendsCrumbAndInvalidatesCache(t *testing.T) {
	var posted int32
	client, stub := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Path == "/crumbIssuer/api/json":
			return jsonResponse(http.StatusOK, `{"crumb":"abc","crumbRequestField":"Jenkins-Crumb"}`), nil
		case req.URL.Path == "/job/api/build" && req.Method == http.MethodPost:
			if req.Header.Get("Jenkins-Crumb") != "abc" {
				t.Fatalf("expected crumb header")
			}
			atomic.AddInt32(&posted, 1)
			return jsonResponse(http.StatusCreated, ""), nil
		}
		t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
		return nil, nil
	})
	_ = stub.Set(context.Background(), target.cacheKey("jobs"), []byte("[]"), 0)

	if err := client.TriggerBuild(context.Background(), target, "api"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if posted != 1 {
		t.Fatalf("expected one POST")
	}
	if _, err := stub.Get(context.Background(), target.cacheKey("jobs")); err == nil {
		t.Fatalf("expected job cache invalidated")
	}
}

func TestTriggerBuildWithoutCrumbIssuer(t *testing.T) {
	client, _ := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/crumbIssuer/api/json" {
			return jsonResponse(http.StatusNotFound, "not found"), nil
		}
		return jsonResponse(http.StatusCreated, ""), nil
	})
	if err := client.TriggerBuild(context.Background(), target, "api"); err != nil {
		t.Fatalf("trigger without crumb: %v", err)
	}
}

func TestMissingBaseURL(t *testing.T) {
	client, _ := newTestJenkins(func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := client.ListJobs(context.Background(), Target{}); !utils.IsUpstream(err) {
		t.Fatalf("expected upstream error for missing base URL, got %v", err)
	}
}

func TestJobPath(t *testing.T) {
	if got := jobPath("/team a/api/"); got != "/job/team%20a/job/api" {
		t.Fatalf("unexpected job path %q", got)
	}
}
