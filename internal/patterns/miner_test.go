package patterns

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/miradorstack/pipeline-rca/internal/engine"
	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

type fakeStatsStore struct {
	stored int
}

func (f *fakeStatsStore) StoreStats(ctx context.Context, stats models.FailureStats) error {
	f.stored++
	return nil
}

func analysesFixture() []models.FailureAnalysis {
	classifier := engine.NewClassifier(nil, nil)
	return []models.FailureAnalysis{
		classifier.Analyze("api", "Step timed out", nil, nil, nil),
		classifier.Analyze("api", "timeout waiting for agent", []string{"deadline exceeded"}, nil, nil),
		classifier.Analyze("web", "java.lang.OutOfMemoryError: Java heap space", nil, nil, nil),
		classifier.Analyze("web", "everything is fine", nil, nil, nil),
	}
}

func TestMinerGeneratesStats(t *testing.T) {
	store := &fakeStatsStore{}
	miner := NewMiner(nil, store)

	stats := miner.GenerateFailureStats(context.Background(), analysesFixture())
	if stats.TotalFailures != 4 {
		t.Fatalf("expected 4 failures, got %d", stats.TotalFailures)
	}
	if store.stored != 1 {
		t.Fatalf("expected stats to be stored")
	}

	wantCategories := []models.CategoryBreakdown{
		{CategoryID: "timeout", CategoryName: "Timeout", Severity: models.SeverityHigh, Count: 2, Percentage: 50, AverageResolutionTime: 60},
		{CategoryID: "memory", CategoryName: "Out of Memory", Severity: models.SeverityCritical, Count: 1, Percentage: 25, AverageResolutionTime: 120},
		{CategoryID: "unknown", CategoryName: "Unknown Failure", Severity: models.SeverityMedium, Count: 1, Percentage: 25, AverageResolutionTime: 30},
	}
	if diff := cmp.Diff(wantCategories, stats.ByCategory); diff != "" {
		t.Fatalf("category mismatch (-want +got):\n%s", diff)
	}

	wantPipelines := []models.PipelineBreakdown{
		{PipelineID: "api", Count: 2, Percentage: 50},
		{PipelineID: "web", Count: 2, Percentage: 50},
	}
	if diff := cmp.Diff(wantPipelines, stats.ByPipeline); diff != "" {
		t.Fatalf("pipeline mismatch (-want +got):\n%s", diff)
	}

	counts := make(map[string]int)
	for _, p := range stats.TopPatterns {
		counts[p.Pattern] = p.Count
	}
	wantCounts := map[string]int{"timed out": 1, "timeout": 1, "deadline exceeded": 1, "outofmemoryerror": 1, "heap space": 1}
	if diff := cmp.Diff(wantCounts, counts, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("pattern counts mismatch (-want +got):\n%s", diff)
	}

	// sorted estimates: 30, 60, 60, 120
	want := models.ResolutionDistribution{Average: 67.5, Median: 60, Min: 30, Max: 120}
	if stats.ResolutionTimes != want {
		t.Fatalf("unexpected distribution %+v", stats.ResolutionTimes)
	}
}

func TestDistributionMedianTakesUpperMiddle(t *testing.T) {
	got := distribution([]float64{15, 120, 30, 60})
	if got.Median != 60 {
		t.Fatalf("expected floor(n/2) median 60, got %v", got.Median)
	}
}

func TestMinerEmpty(t *testing.T) {
	stats := NewMiner(nil, nil).GenerateFailureStats(context.Background(), nil)
	if stats.TotalFailures != 0 || len(stats.ByCategory) != 0 || stats.ResolutionTimes != (models.ResolutionDistribution{}) {
		t.Fatalf("unexpected empty stats %+v", stats)
	}
}

func TestMinerStoreFailureIsLogged(t *testing.T) {
	miner := NewMiner(nil, StoreFunc(func(ctx context.Context, stats models.FailureStats) error {
		return errors.New("cache down")
	}))
	stats := miner.GenerateFailureStats(context.Background(), analysesFixture())
	if stats.TotalFailures != 4 {
		t.Fatalf("store failure must not affect stats")
	}
}

func TestParseHistoricalFailures(t *testing.T) {
	if _, err := ParseHistoricalFailures("[{"); !utils.IsMalformed(err) {
		t.Fatalf("expected malformed input error, got %v", err)
	}
	got, err := ParseHistoricalFailures(`[{"pipelineId":"p1","category":{"id":"timeout","severity":"high"}}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || got[0].Category.ID != "timeout" {
		t.Fatalf("unexpected analyses %+v", got)
	}
	if empty, err := ParseHistoricalFailures(" "); err != nil || empty != nil {
		t.Fatalf("expected empty input to yield nothing")
	}
}
