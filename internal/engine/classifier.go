package engine

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/pipeline-rca/internal/metrics"
	"github.com/miradorstack/pipeline-rca/internal/models"
)

const categoryBonus = 0.2

// Classifier maps failure text and log lines onto the ordered category table.
type Classifier struct {
	categories []models.FailureCategory
	logger     *slog.Logger
	now        func() time.Time
}

// NewClassifier constructs a classifier; a nil table selects DefaultCategories.
func NewClassifier(logger *slog.Logger, categories []models.FailureCategory) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if categories == nil {
		categories = DefaultCategories()
	}
	return &Classifier{categories: categories, logger: logger, now: time.Now}
}

// Categories returns a copy of the category table in match order.
func (c *Classifier) Categories() []models.FailureCategory {
	out := make([]models.FailureCategory, len(c.categories))
	copy(out, c.categories)
	return out
}

// Category looks up a category by id; the unknown id resolves to UnknownCategory.
func (c *Classifier) Category(id string) (models.FailureCategory, bool) {
	if id == models.UnknownCategoryID {
		return UnknownCategory(), true
	}
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return models.FailureCategory{}, false
}

// Classify returns the first category with a pattern contained in the joined,
// lower-cased text, or nil when nothing matches. Matching is plain substring
// containment, so "test" matches inside "attested".
func (c *Classifier) Classify(reason string, logs []string) *models.FailureCategory {
	text := normaliseText(reason, logs)
	for i := range c.categories {
		for _, pattern := range c.categories[i].Patterns {
			if pattern != "" && strings.Contains(text, pattern) {
				cat := c.categories[i]
				return &cat
			}
		}
	}
	return nil
}

// Analyze classifies the failure, substitutes the unknown category when needed,
// scores confidence and links history entries of the same category from other pipelines.
func (c *Classifier) Analyze(pipelineID, reason string, logs, affectedStages []string, history []models.FailureAnalysis) models.FailureAnalysis {
	start := time.Now()

	category := UnknownCategory()
	if matched := c.Classify(reason, logs); matched != nil {
		category = *matched
	}

	text := normaliseText(reason, logs)
	confidence := Confidence(category, MatchedPatterns(category, text))

	similar := make([]models.FailureAnalysis, 0)
	for _, prev := range history {
		if prev.Category.ID == category.ID && prev.PipelineID != pipelineID {
			prev.SimilarFailures = nil
			similar = append(similar, prev)
		}
	}

	if logs == nil {
		logs = []string{}
	}
	if affectedStages == nil {
		affectedStages = []string{}
	}

	analysis := models.FailureAnalysis{
		ID:              newID(),
		PipelineID:      pipelineID,
		FailureReason:   reason,
		Category:        category,
		Confidence:      confidence,
		Timestamp:       c.now().UTC(),
		Logs:            logs,
		AffectedStages:  affectedStages,
		SimilarFailures: similar,
	}

	metrics.ObserveClassification(time.Since(start), category.ID)
	c.logger.Debug("failure classified",
		slog.String("pipeline_id", pipelineID),
		slog.String("category", category.ID),
		slog.Float64("confidence", confidence),
		slog.Int("similar", len(similar)),
	)
	return analysis
}

// MatchedPatterns lists every pattern of category contained in text, which must
// already be lower-cased.
func MatchedPatterns(category models.FailureCategory, text string) []string {
	matched := make([]string, 0)
	for _, pattern := range category.Patterns {
		if pattern != "" && strings.Contains(text, pattern) {
			matched = append(matched, pattern)
		}
	}
	return matched
}

// Confidence scores a match as matched/total plus a bonus for known categories, clamped to [0,1].
func Confidence(category models.FailureCategory, matched []string) float64 {
	score := 0.0
	if total := len(category.Patterns); total > 0 {
		score = math.Min(float64(len(matched))/float64(total), 1)
	}
	if category.ID != models.UnknownCategoryID {
		score += categoryBonus
	}
	return math.Max(0, math.Min(score, 1))
}

// NormaliseText joins the reason and log lines with spaces and lower-cases the result.
func NormaliseText(reason string, logs []string) string {
	return normaliseText(reason, logs)
}

func normaliseText(reason string, logs []string) string {
	parts := make([]string, 0, len(logs)+1)
	parts = append(parts, reason)
	parts = append(parts, logs...)
	return strings.ToLower(strings.Join(parts, " "))
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
