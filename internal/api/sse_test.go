package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/pipeline-rca/internal/models"
)

func TestHubStreamsNotifications(t *testing.T) {
	hub := NewHub(nil, 1)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("expected connected comment, got %q (%v)", line, err)
	}

	second, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 beyond client limit, got %d", second.StatusCode)
	}

	if err := hub.Publish(models.Notification{ID: "n-1", Title: "api failed"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	if !strings.Contains(line, `"id":"n-1"`) {
		t.Fatalf("unexpected event payload %q", line)
	}
}

func TestHubPublishDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, 1)
	ch, ok := hub.register()
	if !ok {
		t.Fatalf("register failed")
	}
	for i := 0; i < sseClientBuffer+5; i++ {
		hub.Publish(models.Notification{ID: "n"})
	}
	if len(ch) != sseClientBuffer {
		t.Fatalf("expected buffer to fill to %d, got %d", sseClientBuffer, len(ch))
	}
	hub.unregister(ch)
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients")
	}
}
