package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels upstream calls that returned 2xx.
	OutcomeSuccess = "success"
	// OutcomeError labels upstream calls that failed or returned non-2xx.
	OutcomeError = "error"
)

var (
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline_rca",
			Name:      "classifications_total",
			Help:      "Total number of failure classifications, partitioned by category.",
		},
		[]string{"category"},
	)

	classificationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pipeline_rca",
			Name:      "classification_seconds",
			Help:      "Failure classification latency in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	notificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline_rca",
			Name:      "notifications_created_total",
			Help:      "Notifications created, partitioned by type and severity.",
		},
		[]string{"type", "severity"},
	)

	ruleMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline_rca",
			Name:      "rule_matches_total",
			Help:      "Notification rules applied, partitioned by rule id.",
		},
		[]string{"rule"},
	)

	subscriberFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline_rca",
			Name:      "subscriber_failures_total",
			Help:      "Notification subscriber callbacks that panicked.",
		},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline_rca",
			Name:      "upstream_requests_total",
			Help:      "Jenkins API requests, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	upstreamDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pipeline_rca",
			Name:      "upstream_request_seconds",
			Help:      "Jenkins API request latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)

// Register attaches pipeline-rca collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		classificationsTotal,
		classificationDurationSeconds,
		notificationsCreatedTotal,
		ruleMatchesTotal,
		subscriberFailuresTotal,
		upstreamRequestsTotal,
		upstreamDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveClassification records a classification duration and its category label.
func ObserveClassification(duration time.Duration, category string) {
	if category == "" {
		category = "unknown"
	}
	classificationsTotal.WithLabelValues(category).Inc()
	if duration < 0 {
		duration = 0
	}
	classificationDurationSeconds.Observe(duration.Seconds())
}

// NotificationCreated counts a created notification.
func NotificationCreated(notificationType, severity string) {
	notificationsCreatedTotal.WithLabelValues(notificationType, severity).Inc()
}

// RuleMatched counts an applied rule.
func RuleMatched(ruleID string) {
	ruleMatchesTotal.WithLabelValues(ruleID).Inc()
}

// SubscriberFailed counts a recovered subscriber panic.
func SubscriberFailed() {
	subscriberFailuresTotal.Inc()
}

// ObserveUpstream records a Jenkins request duration and outcome label.
func ObserveUpstream(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	upstreamRequestsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	upstreamDurationSeconds.Observe(duration.Seconds())
}
