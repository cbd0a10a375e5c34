package extractors

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLogsExtractorExtract(t *testing.T) {
	extractor := NewLogsExtractor(2)

	lines := []string{
		"Started by user admin",
		"[Pipeline] stage",
		"[Pipeline] { (Checkout)",
		"Cloning repository",
		"[Pipeline] }",
		"[Pipeline] { (Build)",
		"[ERROR] COMPILATION ERROR :",
		"[ERROR] Foo.java:[3,1] cannot find symbol",
		"[Pipeline] { (Declarative: Post Actions)",
		"ERROR: script returned exit code 1",
	}

	got := extractor.Extract(lines)
	want := ConsoleSummary{
		FailureReason: "[ERROR] COMPILATION ERROR :",
		ErrorLines:    []string{"[ERROR] COMPILATION ERROR :", "[ERROR] Foo.java:[3,1] cannot find symbol"},
		Stages:        []string{"Checkout", "Build"},
		FailedStages:  []string{"Build"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestLogsExtractorEmpty(t *testing.T) {
	got := NewLogsExtractor(0).Extract(nil)
	if got.FailureReason != "" || len(got.ErrorLines) != 0 {
		t.Fatalf("expected empty summary, got %+v", got)
	}
}

func TestDurationExtractorDetect(t *testing.T) {
	extractor := NewDurationExtractor()

	start := time.Now().Add(-time.Hour)
	series := make([]DurationSample, 0, 6)
	for i := 0; i < 6; i++ {
		dur := 60 * time.Second
		if i == 5 {
			dur = 300 * time.Second
		}
		series = append(series, DurationSample{Build: i + 1, Duration: dur, Timestamp: start.Add(time.Duration(i) * time.Minute)})
	}

	anomalies := extractor.Detect(series, 2.5)
	if len(anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Build != 6 || anomalies[0].Baseline != 60*time.Second {
		t.Fatalf("unexpected anomaly %+v", anomalies[0])
	}
}

func TestDurationExtractorIgnoresSmallDrift(t *testing.T) {
	extractor := NewDurationExtractor()
	baseline := []DurationSample{
		{Build: 1, Duration: 60 * time.Second},
		{Build: 2, Duration: 60 * time.Second},
		{Build: 3, Duration: 60 * time.Second},
	}
	if _, ok := extractor.Score(DurationSample{Build: 4, Duration: 61 * time.Second}, baseline, 2.5); ok {
		t.Fatalf("expected small drift to be ignored")
	}
	if _, ok := extractor.Score(DurationSample{Build: 4, Duration: 10 * time.Minute}, baseline[:2], 2.5); ok {
		t.Fatalf("expected short baseline to be ignored")
	}
}
