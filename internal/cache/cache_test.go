package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewMemoryProvider()
	p.now = func() time.Time { return now }

	if err := p.Set(ctx, "jobs", []byte("a"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "jobs")
	if err != nil || string(got) != "a" {
		t.Fatalf("expected hit, got %q %v", got, err)
	}

	now = now.Add(time.Minute)
	if _, err := p.Get(ctx, "jobs"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryProviderSetNX(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	ok, err := p.SetNX(ctx, "lock", []byte("1"), 0)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win")
	}
	if ok, _ := p.SetNX(ctx, "lock", []byte("2"), 0); ok {
		t.Fatalf("expected second setnx to lose")
	}
	if err := p.Del(ctx, "lock"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if ok, _ := p.SetNX(ctx, "lock", []byte("3"), 0); !ok {
		t.Fatalf("expected setnx after delete to win")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	type payload struct {
		Name string `json:"name"`
	}
	if err := SetJSON(ctx, p, "k", payload{Name: "build"}, 0); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var out payload
	if err := GetJSON(ctx, p, "k", &out); err != nil || out.Name != "build" {
		t.Fatalf("expected decoded payload, got %+v %v", out, err)
	}
	if err := GetJSON(ctx, NoopProvider{}, "k", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss from noop provider, got %v", err)
	}
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
