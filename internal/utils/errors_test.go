package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorNamesFields(t *testing.T) {
	err := NewValidationError("type", "title")
	if err.Error() != "missing required fields: type, title" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	wrapped := fmt.Errorf("create notification: %w", err)
	if !IsValidation(wrapped) {
		t.Fatalf("expected wrapped validation error to be detected")
	}
	if IsNotFound(wrapped) || IsMalformed(wrapped) || IsUpstream(wrapped) {
		t.Fatalf("validation error matched another kind")
	}
}

func TestUpstreamErrorPreservesOriginal(t *testing.T) {
	cause := errors.New("connection refused")
	err := &UpstreamError{Op: "list jobs", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected original error to be preserved")
	}
	withStatus := &UpstreamError{Op: "get build", StatusCode: 503, Body: "unavailable"}
	if withStatus.Error() != "get build: upstream returned 503: unavailable" {
		t.Fatalf("unexpected message: %s", withStatus.Error())
	}
}

func TestMalformedInputUnwraps(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &MalformedInputError{Field: "historicalFailures", Err: cause}
	if !errors.Is(err, cause) || !IsMalformed(err) {
		t.Fatalf("expected malformed error to unwrap to cause")
	}
}
