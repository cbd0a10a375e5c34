package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type build struct {
	Number    int    `json:"number"`
	URL       string `json:"url"`
	Result    string `json:"result"`
	Building  bool   `json:"building"`
	Timestamp int64  `json:"timestamp"`
	Duration  int64  `json:"duration"`
}

type job struct {
	name    string
	console []string
	results []string
	builds  []build
}

type jenkins struct {
	mu   sync.Mutex
	base string
	jobs map[string]*job
	next map[string]int
}

func newJenkins(base string) *jenkins {
	j := &jenkins{base: base, jobs: map[string]*job{}, next: map[string]int{}}
	j.add("api", []string{"SUCCESS", "SUCCESS", "FAILURE"}, []string{
		"[Pipeline] { (Build)",
		"+ ./gradlew test",
		"java.lang.OutOfMemoryError: Java heap space",
		"[Pipeline] }",
		"ERROR: script returned exit code 1",
	}, time.Minute)
	j.add("web", []string{"FAILURE", "SUCCESS"}, []string{"npm ERR! 404 Not Found"}, 2*time.Minute)
	j.add("nightly-e2e", []string{"SUCCESS", "UNSTABLE"}, []string{"Tests run: 40, Failures: 2"}, 5*time.Minute)
	j.add("deploy-prod", []string{"SUCCESS", "SUCCESS", "SUCCESS", "SUCCESS"}, []string{"deployed"}, 3*time.Minute)
	dp := j.jobs["deploy-prod"]
	dp.builds[len(dp.builds)-1].Duration = (15 * time.Minute).Milliseconds()
	return j
}

func (j *jenkins) add(name string, results, console []string, d time.Duration) {
	jb := &job{name: name, console: console, results: results}
	j.jobs[name] = jb
	for _, r := range results {
		j.appendBuild(jb, r, d)
	}
}

func (j *jenkins) appendBuild(jb *job, result string, d time.Duration) build {
	j.next[jb.name]++
	n := j.next[jb.name]
	b := build{
		Number:    n,
		URL:       j.base + "/job/" + jb.name + "/" + strconv.Itoa(n) + "/",
		Result:    result,
		Timestamp: time.Now().Add(-time.Duration(10-n) * time.Hour).UnixMilli(),
		Duration:  d.Milliseconds(),
	}
	jb.builds = append(jb.builds, b)
	return b
}

func (jb *job) newestFirst() []build {
	out := make([]build, 0, len(jb.builds))
	for i := len(jb.builds) - 1; i >= 0; i-- {
		out = append(out, jb.builds[i])
	}
	return out
}

func (jb *job) find(ref string) (build, bool) {
	if len(jb.builds) == 0 {
		return build{}, false
	}
	if ref == "lastBuild" {
		return jb.builds[len(jb.builds)-1], true
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return build{}, false
	}
	for _, b := range jb.builds {
		if b.Number == n {
			return b, true
		}
	}
	return build{}, false
}

func color(result string) string {
	switch result {
	case "SUCCESS":
		return "blue"
	case "UNSTABLE":
		return "yellow"
	default:
		return "red"
	}
}

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	flag.Parse()
	j := newJenkins("http://localhost" + *addr)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/json", func(w http.ResponseWriter, _ *http.Request) {
		j.mu.Lock()
		defer j.mu.Unlock()
		jobs := make([]map[string]any, 0, len(j.jobs))
		for name, jb := range j.jobs {
			last := jb.builds[len(jb.builds)-1]
			jobs = append(jobs, map[string]any{
				"name": name, "fullName": name, "url": j.base + "/job/" + name + "/",
				"color": color(last.Result), "lastBuild": last,
			})
		}
		writeJSON(w, map[string]any{"jobs": jobs})
	})
	mux.HandleFunc("GET /job/{name}/api/json", func(w http.ResponseWriter, r *http.Request) {
		j.mu.Lock()
		defer j.mu.Unlock()
		jb, ok := j.jobs[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"builds": jb.newestFirst()})
	})
	mux.HandleFunc("GET /job/{name}/{ref}/api/json", func(w http.ResponseWriter, r *http.Request) {
		j.withBuild(w, r, func(_ *job, b build) { writeJSON(w, b) })
	})
	mux.HandleFunc("GET /job/{name}/{ref}/consoleText", func(w http.ResponseWriter, r *http.Request) {
		j.withBuild(w, r, func(jb *job, b build) {
			w.Header().Set("Content-Type", "text/plain")
			lines := []string{"Started by user admin"}
			if b.Result != "SUCCESS" {
				lines = append(lines, jb.console...)
			}
			lines = append(lines, "Finished: "+b.Result)
			_, _ = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
		})
	})
	mux.HandleFunc("GET /job/{name}/{ref}/wfapi/describe", func(w http.ResponseWriter, r *http.Request) {
		j.withBuild(w, r, func(_ *job, b build) {
			status := "SUCCESS"
			if b.Result != "SUCCESS" {
				status = "FAILED"
			}
			writeJSON(w, map[string]any{"stages": []map[string]any{
				{"id": "6", "name": "Checkout", "status": "SUCCESS", "startTimeMillis": b.Timestamp, "durationMillis": 4000},
				{"id": "12", "name": "Build", "status": status, "startTimeMillis": b.Timestamp + 4000, "durationMillis": b.Duration - 4000},
			}})
		})
	})
	mux.HandleFunc("GET /queue/api/json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"items": []map[string]any{
			{"id": 42, "task": map[string]string{"name": "api", "url": j.base + "/job/api/"}, "why": "Waiting for next available executor", "inQueueSince": time.Now().Add(-time.Minute).UnixMilli()},
		}})
	})
	mux.HandleFunc("GET /crumbIssuer/api/json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"crumb": "mock-crumb", "crumbRequestField": "Jenkins-Crumb"})
	})
	mux.HandleFunc("POST /job/{name}/build", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Jenkins-Crumb") != "mock-crumb" {
			http.Error(w, "No valid crumb was included in the request", http.StatusForbidden)
			return
		}
		j.mu.Lock()
		defer j.mu.Unlock()
		jb, ok := j.jobs[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		result := jb.results[len(jb.builds)%len(jb.results)]
		b := j.appendBuild(jb, result, time.Minute)
		log.Printf("triggered %s #%d -> %s", jb.name, b.Number, result)
		w.Header().Set("Location", j.base+"/queue/item/"+strconv.Itoa(b.Number)+"/")
		w.WriteHeader(http.StatusCreated)
	})

	log.Printf("mock jenkins listening on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (j *jenkins) withBuild(w http.ResponseWriter, r *http.Request, fn func(*job, build)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	jb, ok := j.jobs[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	b, ok := jb.find(r.PathValue("ref"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	fn(jb, b)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
