package patterns

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/miradorstack/pipeline-rca/internal/engine"
	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

const topPatternLimit = 10

// resolutionMinutes is a fixed estimate per severity, not measured data.
var resolutionMinutes = map[models.Severity]float64{
	models.SeverityLow:      15,
	models.SeverityMedium:   30,
	models.SeverityHigh:     60,
	models.SeverityCritical: 120,
}

// Store abstracts persistence for generated stats snapshots.
type Store interface {
	StoreStats(ctx context.Context, stats models.FailureStats) error
}

// Miner aggregates failure analyses into category, pipeline and pattern statistics.
type Miner struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger, now: time.Now}
}

// ParseHistoricalFailures decodes a client-supplied JSON array of analyses. An
// empty string yields no analyses.
func ParseHistoricalFailures(raw string) ([]models.FailureAnalysis, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var analyses []models.FailureAnalysis
	if err := json.Unmarshal([]byte(raw), &analyses); err != nil {
		return nil, &utils.MalformedInputError{Field: "historicalFailures", Err: err}
	}
	return analyses, nil
}

// GenerateFailureStats groups analyses by category and pipeline and summarises
// matched patterns and estimated resolution times.
func (m *Miner) GenerateFailureStats(ctx context.Context, analyses []models.FailureAnalysis) models.FailureStats {
	stats := models.FailureStats{
		TotalFailures: len(analyses),
		ByCategory:    []models.CategoryBreakdown{},
		ByPipeline:    []models.PipelineBreakdown{},
		TopPatterns:   []models.PatternFrequency{},
		GeneratedAt:   m.now().UTC(),
	}
	if len(analyses) == 0 {
		return stats
	}

	categories := make(map[string]*models.CategoryBreakdown)
	pipelines := make(map[string]*models.PipelineBreakdown)
	patternCounts := make(map[patternKey]int)
	resolutions := make([]float64, 0, len(analyses))

	for _, a := range analyses {
		catID := a.Category.ID
		if catID == "" {
			catID = models.UnknownCategoryID
		}
		cat, ok := categories[catID]
		if !ok {
			cat = &models.CategoryBreakdown{
				CategoryID:            catID,
				CategoryName:          a.Category.Name,
				Severity:              a.Category.Severity,
				AverageResolutionTime: estimatedResolution(a.Category.Severity),
			}
			categories[catID] = cat
		}
		cat.Count++

		pipelineID := a.PipelineID
		if pipelineID == "" {
			pipelineID = "unknown"
		}
		p, ok := pipelines[pipelineID]
		if !ok {
			p = &models.PipelineBreakdown{PipelineID: pipelineID}
			pipelines[pipelineID] = p
		}
		p.Count++

		text := engine.NormaliseText(a.FailureReason, a.Logs)
		for _, pattern := range engine.MatchedPatterns(a.Category, text) {
			patternCounts[patternKey{pattern: pattern, category: catID}]++
		}
		resolutions = append(resolutions, estimatedResolution(a.Category.Severity))
	}

	total := float64(len(analyses))
	for _, cat := range categories {
		cat.Percentage = float64(cat.Count) / total * 100
		stats.ByCategory = append(stats.ByCategory, *cat)
	}
	slices.SortFunc(stats.ByCategory, func(a, b models.CategoryBreakdown) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.CategoryID, b.CategoryID))
	})

	for _, p := range pipelines {
		p.Percentage = float64(p.Count) / total * 100
		stats.ByPipeline = append(stats.ByPipeline, *p)
	}
	slices.SortFunc(stats.ByPipeline, func(a, b models.PipelineBreakdown) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.PipelineID, b.PipelineID))
	})

	for key, count := range patternCounts {
		stats.TopPatterns = append(stats.TopPatterns, models.PatternFrequency{Pattern: key.pattern, CategoryID: key.category, Count: count})
	}
	slices.SortFunc(stats.TopPatterns, func(a, b models.PatternFrequency) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Pattern, b.Pattern), strings.Compare(a.CategoryID, b.CategoryID))
	})
	if len(stats.TopPatterns) > topPatternLimit {
		stats.TopPatterns = stats.TopPatterns[:topPatternLimit]
	}

	stats.ResolutionTimes = distribution(resolutions)

	if m.store != nil {
		if err := m.store.StoreStats(ctx, stats); err != nil {
			m.logger.Warn("stats store failed", slog.Any("error", err))
		}
	}
	return stats
}

type patternKey struct {
	pattern  string
	category string
}

func estimatedResolution(severity models.Severity) float64 {
	if v, ok := resolutionMinutes[severity]; ok {
		return v
	}
	return resolutionMinutes[models.SeverityMedium]
}

// distribution takes the element at floor(n/2) as the median, without averaging
// the two middle values for even n.
func distribution(values []float64) models.ResolutionDistribution {
	if len(values) == 0 {
		return models.ResolutionDistribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return models.ResolutionDistribution{
		Average: sum / float64(len(sorted)),
		Median:  sorted[len(sorted)/2],
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
	}
}
