package models

import "time"

// RiskLevel grades how disruptive a remediation step is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SolutionStep is one ranked remediation step.
type SolutionStep struct {
	Order       int       `json:"order" yaml:"order"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Commands    []string  `json:"commands,omitempty" yaml:"commands,omitempty"`
	RiskLevel   RiskLevel `json:"riskLevel" yaml:"riskLevel"`
	Required    bool      `json:"required" yaml:"required"`
}

// SolutionTemplate is a curated remediation entry in the knowledge base.
type SolutionTemplate struct {
	ID               string         `json:"id" yaml:"id"`
	Title            string         `json:"title" yaml:"title"`
	Description      string         `json:"description" yaml:"description"`
	Category         string         `json:"category" yaml:"category"`
	Severity         Severity       `json:"severity" yaml:"severity"`
	ProblemPatterns  []string       `json:"problemPatterns" yaml:"problemPatterns"`
	Tags             []string       `json:"tags" yaml:"tags"`
	Solutions        []SolutionStep `json:"solutions" yaml:"solutions"`
	PreventionSteps  []string       `json:"preventionSteps" yaml:"preventionSteps"`
	EstimatedFixTime string         `json:"estimatedFixTime" yaml:"estimatedFixTime"`
	SuccessRate      float64        `json:"successRate" yaml:"successRate"`
	Verified         bool           `json:"verified" yaml:"verified"`
	AutoFixScript    *string        `json:"autoFixScript" yaml:"autoFixScript,omitempty"`
	Version          int            `json:"version" yaml:"version"`
	CreatedAt        time.Time      `json:"createdAt" yaml:"createdAt"`
	LastUpdated      time.Time      `json:"lastUpdated" yaml:"lastUpdated"`
}

// PatternMatch records a problem pattern that matched some text.
type PatternMatch struct {
	SolutionID string `json:"solutionId"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Pattern    string `json:"pattern"`
	Match      string `json:"match"`
}

// KnowledgeBaseStats summarises the catalog.
type KnowledgeBaseStats struct {
	TotalSolutions     int            `json:"totalSolutions"`
	ByCategory         map[string]int `json:"byCategory"`
	BySeverity         map[string]int `json:"bySeverity"`
	Verified           int            `json:"verified"`
	AutoFixAvailable   int            `json:"autoFixAvailable"`
	AverageSuccessRate float64        `json:"averageSuccessRate"`
	Version            int            `json:"version"`
	LastUpdated        time.Time      `json:"lastUpdated"`
}

// KnowledgeBaseExport is the portable catalog snapshot.
type KnowledgeBaseExport struct {
	Version     int                `json:"version"`
	LastUpdated time.Time          `json:"lastUpdated"`
	Solutions   []SolutionTemplate `json:"solutions"`
}
