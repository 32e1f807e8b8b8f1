package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if _, err := provider.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := provider.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := provider.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("value = %q, want v", got)
	}

	if err := provider.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderTTLExpiry(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if err := provider.Set(ctx, "ephemeral", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(ctx, "ephemeral"); err != nil {
		t.Fatalf("fresh value should be readable: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := provider.Get(ctx, "ephemeral"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	provider := NoopProvider{}

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop cache must never hit, got %v", err)
	}
}
