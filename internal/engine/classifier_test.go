package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/miradorstack/pipeline-rca/internal/models"
)

// isolatedPattern picks a pattern of categories[idx] that contains no pattern of
// an earlier category and no other pattern of its own category.
func isolatedPattern(t *testing.T, categories []models.FailureCategory, idx int) string {
	t.Helper()
	for _, candidate := range categories[idx].Patterns {
		clean := true
		for i := 0; i <= idx && clean; i++ {
			for _, other := range categories[i].Patterns {
				if i == idx && other == candidate {
					continue
				}
				if strings.Contains(candidate, other) {
					clean = false
					break
				}
			}
		}
		if clean {
			return candidate
		}
	}
	t.Fatalf("category %s has no isolated pattern", categories[idx].ID)
	return ""
}

func TestClassifyEveryCategoryReachable(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	categories := classifier.Categories()

	for idx, cat := range categories {
		pattern := isolatedPattern(t, categories, idx)
		got := classifier.Classify("Build step: "+strings.ToUpper(pattern), nil)
		if got == nil {
			t.Fatalf("pattern %q: expected %s, got nil", pattern, cat.ID)
		}
		if got.ID != cat.ID {
			t.Fatalf("pattern %q: expected %s, got %s", pattern, cat.ID, got.ID)
		}
	}
}

func TestClassifyUsesTableOrder(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	got := classifier.Classify("docker pull timed out", nil)
	if got == nil || got.ID != "timeout" {
		t.Fatalf("expected timeout to win over docker, got %+v", got)
	}
}

func TestClassifyMatchesInsideWords(t *testing.T) {
	classifier := NewClassifier(nil, []models.FailureCategory{
		{ID: "test", Patterns: []string{"test"}, Severity: models.SeverityLow},
	})
	got := classifier.Classify("the artifact was attested", nil)
	if got == nil || got.ID != "test" {
		t.Fatalf("expected substring match inside word, got %+v", got)
	}
}

func TestClassifyJoinsLogs(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	got := classifier.Classify("Build failed", []string{"step 1 ok", "java.lang.OutOfMemoryError: Java heap space"})
	if got == nil || got.ID != "memory" {
		t.Fatalf("expected memory from log lines, got %+v", got)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	if got := classifier.Classify("all good", []string{"nothing to see"}); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}

	analysis := classifier.Analyze("p1", "all good", []string{"nothing to see"}, nil, nil)
	if analysis.Category.ID != models.UnknownCategoryID {
		t.Fatalf("expected unknown category, got %s", analysis.Category.ID)
	}
	if analysis.Category.Severity != models.SeverityMedium || analysis.Category.AutoFixAvailable {
		t.Fatalf("unexpected unknown category %+v", analysis.Category)
	}
	if len(analysis.Category.Solutions) != 1 {
		t.Fatalf("expected a single generic solution, got %v", analysis.Category.Solutions)
	}
	if analysis.Confidence != 0 {
		t.Fatalf("expected zero confidence for unknown, got %v", analysis.Confidence)
	}
}

func TestAnalyzeSolePatternConfidence(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	categories := classifier.Categories()

	for idx, cat := range categories {
		pattern := isolatedPattern(t, categories, idx)
		analysis := classifier.Analyze("p1", pattern, nil, nil, nil)
		want := math.Min(1/float64(len(cat.Patterns))+categoryBonus, 1)
		if math.Abs(analysis.Confidence-want) > 1e-9 {
			t.Fatalf("%s: expected confidence %v, got %v", cat.ID, want, analysis.Confidence)
		}
	}
}

func TestAnalyzeConfidenceClamped(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	cat, _ := classifier.Category("timeout")
	analysis := classifier.Analyze("p1", strings.Join(cat.Patterns, " "), nil, nil, nil)
	if analysis.Confidence != 1 {
		t.Fatalf("expected clamped confidence 1, got %v", analysis.Confidence)
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", analysis.Confidence)
	}
}

func TestAnalyzeSimilarFailures(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	history := []models.FailureAnalysis{
		{ID: "a", PipelineID: "p1", Category: models.FailureCategory{ID: "timeout"}},
		{ID: "b", PipelineID: "p2", Category: models.FailureCategory{ID: "timeout"}},
		{ID: "c", PipelineID: "p3", Category: models.FailureCategory{ID: "memory"}},
		{ID: "d", PipelineID: "p4", Category: models.FailureCategory{ID: "timeout"}},
	}

	analysis := classifier.Analyze("p1", "request timed out", nil, []string{"Test"}, history)
	if len(analysis.SimilarFailures) != 2 {
		t.Fatalf("expected 2 similar failures, got %d", len(analysis.SimilarFailures))
	}
	if analysis.SimilarFailures[0].ID != "b" || analysis.SimilarFailures[1].ID != "d" {
		t.Fatalf("unexpected similar failures %+v", analysis.SimilarFailures)
	}
	if analysis.ID == "" || analysis.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp to be set")
	}
	if len(analysis.AffectedStages) != 1 {
		t.Fatalf("expected affected stages carried through")
	}
}
