package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "trendpipe/pkg/logx"
)

func TestSetThenFresh(t *testing.T) {
	t.Parallel()
	c := New[[]string](logx.Nop())
	c.Set("k", []string{"a", "b"})

	if !c.IsFresh("k", time.Millisecond) {
		t.Fatal("entry should be fresh immediately after Set")
	}
	e, ok := c.Get("k")
	if !ok {
		t.Fatal("entry missing after Set")
	}
	if len(e.Value) != 2 || e.Value[0] != "a" {
		t.Fatalf("unexpected value: %v", e.Value)
	}
}

func TestIsFreshExpiry(t *testing.T) {
	t.Parallel()
	c := New[int](logx.Nop())
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", 1)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	if c.IsFresh("k", time.Hour) {
		t.Fatal("entry older than maxAge reported fresh")
	}
	if !c.IsFresh("k", 3*time.Hour) {
		t.Fatal("entry younger than maxAge reported stale")
	}
}

func TestFetchWithFallbackFreshHitSkipsFetcher(t *testing.T) {
	t.Parallel()
	c := New[string](logx.Nop())
	c.Set("k", "cached")

	called := false
	got := c.FetchWithFallback(context.Background(), "k", time.Hour, "", func(ctx context.Context) (string, error) {
		called = true
		return "new", nil
	})
	if called {
		t.Fatal("fetcher invoked despite fresh entry")
	}
	if got != "cached" {
		t.Fatalf("got %q, want cached value", got)
	}
}

func TestFetchWithFallbackEmptyDefault(t *testing.T) {
	t.Parallel()
	c := New[[]int](logx.Nop())

	got := c.FetchWithFallback(context.Background(), "missing", time.Hour, []int{}, func(ctx context.Context) ([]int, error) {
		return nil, errors.New("upstream down")
	})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected configured empty default, got %v", got)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("failed fetch must not store an entry")
	}
}

func TestFetchWithFallbackStaleServe(t *testing.T) {
	t.Parallel()
	c := New[string](logx.Nop())
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", "stale")

	// Entry is now well past maxAge.
	c.now = func() time.Time { return base.Add(3 * time.Hour) }
	got := c.FetchWithFallback(context.Background(), "k", time.Hour, "", func(ctx context.Context) (string, error) {
		return "", errors.New("rate limited")
	})
	if got != "stale" {
		t.Fatalf("got %q, want stale entry", got)
	}
	// Stale-serve must not refresh the stored timestamp.
	e, _ := c.Get("k")
	if !e.StoredAt.Equal(base) {
		t.Fatal("stale-serve performed an unexpected Set")
	}
}

func TestFetchWithFallbackStoresOnSuccess(t *testing.T) {
	t.Parallel()
	c := New[string](logx.Nop())

	got := c.FetchWithFallback(context.Background(), "k", time.Hour, "", func(ctx context.Context) (string, error) {
		return "fetched", nil
	})
	if got != "fetched" {
		t.Fatalf("got %q", got)
	}
	if !c.IsFresh("k", time.Hour) {
		t.Fatal("successful fetch should store a fresh entry")
	}
}
