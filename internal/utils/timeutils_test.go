package utils

import (
	"testing"
	"time"
)

func TestParseRFC3339RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	parsed, err := ParseRFC3339(FormatRFC3339(now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parsed.Equal(now) {
		t.Fatalf("expected %v, got %v", now, parsed)
	}
	if _, err := ParseRFC3339(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

func TestDurationMinutesOrderInsensitive(t *testing.T) {
	start := time.Unix(0, 0)
	end := start.Add(90 * time.Minute)
	if got := DurationMinutes(end, start); got != 90 {
		t.Fatalf("expected 90 minutes, got %v", got)
	}
}

func TestFromMillis(t *testing.T) {
	if !FromMillis(0).IsZero() {
		t.Fatalf("expected zero time for zero millis")
	}
	if got := FromMillis(1_700_000_000_000); got.Unix() != 1_700_000_000 {
		t.Fatalf("unexpected conversion: %v", got)
	}
}
