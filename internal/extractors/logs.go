package extractors

import (
	"strings"
)

const defaultMaxErrorLines = 50

var errorMarkers = []string{
	"error",
	"exception",
	"fatal",
	"failed",
	"failure",
	"denied",
	"refused",
	"timed out",
	"killed",
}

// ConsoleSummary is the failure evidence extracted from a Jenkins console log.
type ConsoleSummary struct {
	FailureReason string
	ErrorLines    []string
	Stages        []string
	FailedStages  []string
}

// LogsExtractor pulls error lines and pipeline stage hints out of console output.
type LogsExtractor struct {
	maxLines int
}

// NewLogsExtractor constructs a console log extractor keeping at most maxLines error lines.
func NewLogsExtractor(maxLines int) *LogsExtractor {
	if maxLines <= 0 {
		maxLines = defaultMaxErrorLines
	}
	return &LogsExtractor{maxLines: maxLines}
}

// Extract scans console lines in order. Lines emitted inside a pipeline stage
// attribute that stage as failed when they carry an error marker.
func (e *LogsExtractor) Extract(lines []string) ConsoleSummary {
	summary := ConsoleSummary{}
	if len(lines) == 0 {
		return summary
	}

	current := ""
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if stage, ok := stageName(line); ok {
			current = stage
			summary.Stages = appendUnique(summary.Stages, stage)
			continue
		}
		if strings.HasPrefix(line, "[Pipeline]") {
			continue
		}
		if !isErrorLine(line) {
			continue
		}
		if len(summary.ErrorLines) < e.maxLines {
			summary.ErrorLines = append(summary.ErrorLines, line)
		}
		if summary.FailureReason == "" {
			summary.FailureReason = line
		}
		if current != "" {
			summary.FailedStages = appendUnique(summary.FailedStages, current)
		}
	}
	return summary
}

// stageName recognises the declarative pipeline stage opener "[Pipeline] { (Build)".
func stageName(line string) (string, bool) {
	const prefix = "[Pipeline] { ("
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(line, prefix)
	end := strings.LastIndex(rest, ")")
	if end <= 0 {
		return "", false
	}
	name := strings.TrimSpace(rest[:end])
	if name == "" || strings.HasPrefix(name, "Declarative:") {
		return "", false
	}
	return name, true
}

func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, item string) []string {
	for _, v := range existing {
		if v == item {
			return existing
		}
	}
	return append(existing, item)
}
