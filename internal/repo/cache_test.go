package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/pipeline-rca/internal/cache"
)

// stubCache records writes so tests can assert on the keys the client uses.
type stubCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string][]byte)}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), value...)
	s.sets++
	return nil
}

func (s *stubCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	_, exists := s.entries[key]
	s.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, s.Set(ctx, key, value, ttl)
}

func (s *stubCache) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *stubCache) Close() error { return nil }

func (s *stubCache) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestCacheKeyScopedByCredentials(t *testing.T) {
	base := Target{BaseURL: "http://jenkins.local/", Username: "admin", APIToken: "token"}
	other := base
	other.APIToken = "other"
	if base.cacheKey("jobs") == other.cacheKey("jobs") {
		t.Fatalf("expected distinct keys for distinct tokens")
	}
	renamed := base
	renamed.Username = "ops"
	if base.cacheKey("jobs") == renamed.cacheKey("jobs") {
		t.Fatalf("expected distinct keys for distinct users")
	}
	trailing := base
	trailing.BaseURL = "http://jenkins.local"
	if base.cacheKey("jobs") != trailing.cacheKey("jobs") {
		t.Fatalf("expected trailing slash to be ignored")
	}
	key := base.cacheKey("jobs")
	if strings.Contains(key, "token") || strings.Contains(key, "admin") {
		t.Fatalf("credentials leaked into cache key %q", key)
	}
	if !strings.HasPrefix(key, "jenkins:http://jenkins.local:") || !strings.HasSuffix(key, ":jobs") {
		t.Fatalf("unexpected key layout %q", key)
	}
}
