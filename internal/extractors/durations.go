package extractors

import (
	"math"
	"time"
)

// DurationSample is one finished build's wall-clock duration.
type DurationSample struct {
	Build     int
	Duration  time.Duration
	Timestamp time.Time
}

// DurationAnomaly captures a build that ran unusually long against its peers.
type DurationAnomaly struct {
	Build     int
	Duration  time.Duration
	Baseline  time.Duration
	Score     float64
	Threshold float64
}

// DurationExtractor detects slow builds using a leave-one-out z-score.
type DurationExtractor struct {
	minSamples int
	minRatio   float64
}

// NewDurationExtractor creates a build duration anomaly detector.
func NewDurationExtractor() *DurationExtractor {
	return &DurationExtractor{minSamples: 3, minRatio: 1.5}
}

// Detect finds samples whose duration exceeds the mean of the remaining samples
// by at least threshold standard deviations and by minRatio.
func (e *DurationExtractor) Detect(series []DurationSample, threshold float64) []DurationAnomaly {
	if len(series) <= e.minSamples {
		return nil
	}
	anomalies := make([]DurationAnomaly, 0)
	for i := range series {
		if anomaly, ok := e.Score(series[i], without(series, i), threshold); ok {
			anomalies = append(anomalies, anomaly)
		}
	}
	return anomalies
}

// Score evaluates candidate against baseline.
func (e *DurationExtractor) Score(candidate DurationSample, baseline []DurationSample, threshold float64) (DurationAnomaly, bool) {
	if len(baseline) < e.minSamples || candidate.Duration <= 0 {
		return DurationAnomaly{}, false
	}
	if threshold <= 0 {
		threshold = 2.5
	}

	mean := 0.0
	for _, s := range baseline {
		mean += s.Duration.Seconds()
	}
	mean /= float64(len(baseline))

	variance := 0.0
	for _, s := range baseline {
		variance += math.Pow(s.Duration.Seconds()-mean, 2)
	}
	variance /= float64(len(baseline))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		stdDev = 0.01
	}

	value := candidate.Duration.Seconds()
	score := (value - mean) / stdDev
	if score < threshold || mean <= 0 || value/mean < e.minRatio {
		return DurationAnomaly{}, false
	}
	return DurationAnomaly{
		Build:     candidate.Build,
		Duration:  candidate.Duration,
		Baseline:  time.Duration(mean * float64(time.Second)),
		Score:     score,
		Threshold: threshold,
	}, true
}

func without(series []DurationSample, idx int) []DurationSample {
	out := make([]DurationSample, 0, len(series)-1)
	out = append(out, series[:idx]...)
	return append(out, series[idx+1:]...)
}
