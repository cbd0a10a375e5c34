package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterTwiceIsTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObservationsAreGathered(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	ObserveClassification(time.Millisecond, "")
	ObserveUpstream(-time.Second, "weird")
	NotificationCreated("pipeline_failure", "high")
	RuleMatched("critical-prod")
	SubscriberFailed()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := make(map[string]bool)
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{
		"pipeline_rca_classifications_total",
		"pipeline_rca_upstream_requests_total",
		"pipeline_rca_notifications_created_total",
		"pipeline_rca_rule_matches_total",
		"pipeline_rca_subscriber_failures_total",
	} {
		if !seen[name] {
			t.Fatalf("expected %s to be gathered", name)
		}
	}
}
