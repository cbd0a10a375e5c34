package knowledge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

func newTestCatalog(t *testing.T) (*Catalog, *time.Time) {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewCatalog(nil, nil)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	c, _ := newTestCatalog(t)

	got := c.Search("HEAP")
	if len(got) != 1 || got[0].ID != "memory-heap" {
		t.Fatalf("expected memory-heap, got %+v", got)
	}
	if tagged := c.Search("registry"); len(tagged) != 1 || tagged[0].ID != "docker-daemon" {
		t.Fatalf("expected tag search hit, got %+v", tagged)
	}
	if all := c.Search(""); len(all) != len(DefaultSolutions()) {
		t.Fatalf("expected empty query to return all, got %d", len(all))
	}
}

func TestByCategoryAndSeverity(t *testing.T) {
	c, _ := newTestCatalog(t)
	if got := c.ByCategory("network"); len(got) != 1 || got[0].ID != "network-retry" {
		t.Fatalf("unexpected category result %+v", got)
	}
	for _, s := range c.BySeverity(models.SeverityCritical) {
		if s.Severity != models.SeverityCritical {
			t.Fatalf("unexpected severity %s", s.Severity)
		}
	}
	if len(c.BySeverity(models.SeverityCritical)) != 2 {
		t.Fatalf("expected two critical templates")
	}
}

func TestFindSolutionsSortedBySuccessRate(t *testing.T) {
	c, _ := newTestCatalog(t)
	got := c.FindSolutions("Build failed", []string{"java.lang.OutOfMemoryError", "No space left on device"})
	if len(got) != 2 {
		t.Fatalf("expected two matches, got %d", len(got))
	}
	if got[0].ID != "disk-cleanup" || got[1].ID != "memory-heap" {
		t.Fatalf("expected success rate ordering, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRecognizePatternSkipsBadRegex(t *testing.T) {
	c := NewCatalog(nil, []models.SolutionTemplate{
		{ID: "bad", Title: "bad", Category: "x", Severity: models.SeverityLow, ProblemPatterns: []string{"([", "exit code \\d+"}},
	})
	matches := c.RecognizePattern("script returned EXIT CODE 137")
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %+v", matches)
	}
	if matches[0].Match != "EXIT CODE 137" || matches[0].SolutionID != "bad" {
		t.Fatalf("unexpected match %+v", matches[0])
	}
}

func TestAutoFix(t *testing.T) {
	c, _ := newTestCatalog(t)
	script, err := c.AutoFix("disk-cleanup")
	if err != nil || script == nil {
		t.Fatalf("expected script, got %v %v", script, err)
	}
	if script, err := c.AutoFix("test-flaky"); err != nil || script != nil {
		t.Fatalf("expected nil script without error, got %v %v", script, err)
	}
	if _, err := c.AutoFix("missing"); !utils.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if c.AutoFixForCategory("timeout") == nil {
		t.Fatalf("expected category auto-fix")
	}
	if c.AutoFixForCategory("compilation") != nil {
		t.Fatalf("expected no auto-fix for compilation")
	}
}

func TestMutationsBumpVersions(t *testing.T) {
	c, now := newTestCatalog(t)
	startVersion := c.Stats().Version

	added, err := c.Add(models.SolutionTemplate{Title: "Restart agent", Category: "configuration", Severity: models.SeverityLow})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID == "" || added.Version != 1 || !added.CreatedAt.Equal(*now) {
		t.Fatalf("unexpected added template %+v", added)
	}
	if _, err := c.Add(models.SolutionTemplate{ID: added.ID, Title: "dup", Category: "x", Severity: models.SeverityLow}); !utils.IsValidation(err) {
		t.Fatalf("expected duplicate id rejected, got %v", err)
	}
	if _, err := c.Add(models.SolutionTemplate{Title: "no category"}); !utils.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	later := now.Add(time.Hour)
	c.now = func() time.Time { return later }
	updated, err := c.Update(added.ID, models.SolutionTemplate{Title: "Restart agent safely", Category: "configuration", Severity: models.SeverityMedium})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || !updated.LastUpdated.Equal(later) || !updated.CreatedAt.Equal(*now) {
		t.Fatalf("unexpected updated template %+v", updated)
	}
	if _, err := c.Update("missing", updated); !utils.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := c.Delete(added.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete(added.ID); !utils.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	stats := c.Stats()
	if stats.Version != startVersion+3 || !stats.LastUpdated.Equal(later) {
		t.Fatalf("unexpected catalog version %+v", stats)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	c, _ := newTestCatalog(t)
	if _, err := c.Add(models.SolutionTemplate{Title: "Extra", Category: "docker", Severity: models.SeverityLow, Tags: []string{"x"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := c.All()
	beforeStats := c.Stats()

	data, err := c.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	restored := NewCatalog(nil, []models.SolutionTemplate{})
	if err := restored.Import(data); err != nil {
		t.Fatalf("import: %v", err)
	}
	if diff := cmp.Diff(before, restored.All()); diff != "" {
		t.Fatalf("solutions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(beforeStats, restored.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	if err := c.Import(data); err != nil {
		t.Fatalf("self import: %v", err)
	}
	if diff := cmp.Diff(before, c.All()); diff != "" {
		t.Fatalf("self import mismatch (-want +got):\n%s", diff)
	}
}

func TestImportRejectsMalformed(t *testing.T) {
	c, _ := newTestCatalog(t)
	if err := c.Import([]byte("{not json")); !utils.IsMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if err := c.Import([]byte(`{"solutions":[{"id":"a"},{"id":"a"}]}`)); !utils.IsValidation(err) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	if err := os.WriteFile(path, []byte(`solutions:
  - id: custom
    title: Custom fix
    category: timeout
    severity: low
    problemPatterns: ["stuck"]
    successRate: 50
`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	c, err := LoadCatalog(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	all := c.All()
	if len(all) != 1 || all[0].ID != "custom" || all[0].Version != 1 {
		t.Fatalf("unexpected catalog %+v", all)
	}

	fallback, err := LoadCatalog(filepath.Join(dir, "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if len(fallback.All()) != len(DefaultSolutions()) {
		t.Fatalf("expected defaults when seed missing")
	}
}
