package models

import "time"

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// UnknownCategoryID identifies the synthetic fallback category.
const UnknownCategoryID = "unknown"

// FailureCategory is a fixed class of build failure with match patterns and canned remediation.
type FailureCategory struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Description      string   `json:"description" yaml:"description"`
	Patterns         []string `json:"patterns" yaml:"patterns"`
	Severity         Severity `json:"severity" yaml:"severity"`
	CommonCauses     []string `json:"commonCauses" yaml:"commonCauses"`
	Solutions        []string `json:"solutions" yaml:"solutions"`
	AutoFixAvailable bool     `json:"autoFixAvailable" yaml:"autoFixAvailable"`
}

// FailureAnalysis is the ephemeral result of classifying one failure.
type FailureAnalysis struct {
	ID              string            `json:"id"`
	PipelineID      string            `json:"pipelineId"`
	FailureReason   string            `json:"failureReason"`
	Category        FailureCategory   `json:"category"`
	Confidence      float64           `json:"confidence"`
	Timestamp       time.Time         `json:"timestamp"`
	Logs            []string          `json:"logs"`
	AffectedStages  []string          `json:"affectedStages"`
	SimilarFailures []FailureAnalysis `json:"similarFailures"`
}

// CategoryBreakdown summarises analyses sharing a category.
type CategoryBreakdown struct {
	CategoryID            string   `json:"categoryId"`
	CategoryName          string   `json:"categoryName"`
	Severity              Severity `json:"severity"`
	Count                 int      `json:"count"`
	Percentage            float64  `json:"percentage"`
	AverageResolutionTime float64  `json:"averageResolutionTime"`
}

// PipelineBreakdown summarises analyses for one pipeline.
type PipelineBreakdown struct {
	PipelineID string  `json:"pipelineId"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// PatternFrequency counts how often a category pattern occurred in analysed text.
type PatternFrequency struct {
	Pattern    string `json:"pattern"`
	CategoryID string `json:"categoryId"`
	Count      int    `json:"count"`
}

// ResolutionDistribution describes estimated resolution minutes across analyses.
type ResolutionDistribution struct {
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// FailureStats aggregates a set of failure analyses.
type FailureStats struct {
	TotalFailures   int                    `json:"totalFailures"`
	ByCategory      []CategoryBreakdown    `json:"byCategory"`
	ByPipeline      []PipelineBreakdown    `json:"byPipeline"`
	TopPatterns     []PatternFrequency     `json:"topPatterns"`
	ResolutionTimes ResolutionDistribution `json:"resolutionTimes"`
	GeneratedAt     time.Time              `json:"generatedAt"`
}
