// Package cache provides a small in-memory TTL cache with a stale-serve
// fallback used to shield the pipeline from flaky, rate-limited upstreams.
package cache

import (
	"context"
	"sync"
	"time"

	logx "trendpipe/pkg/logx"
)

// Entry stores a value and the time it was written.
type Entry[T any] struct {
	Value    T
	StoredAt time.Time
}

// Cache is a keyed TTL cache. One entry per key; Set overwrites.
//
// Freshness is evaluated per read (IsFresh/FetchWithFallback), so a single
// cache can serve callers with different max ages.
type Cache[T any] struct {
	mu    sync.RWMutex
	items map[string]Entry[T]
	log   logx.Logger

	now func() time.Time // test hook
}

func New[T any](log logx.Logger) *Cache[T] {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache[T]{
		items: make(map[string]Entry[T]),
		log:   log,
		now:   time.Now,
	}
}

// Get returns the entry for key, fresh or not.
func (c *Cache[T]) Get(key string) (Entry[T], bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	return e, ok
}

// Set inserts or overwrites the entry for key.
func (c *Cache[T]) Set(key string, v T) {
	c.mu.Lock()
	c.items[key] = Entry[T]{Value: v, StoredAt: c.now()}
	c.mu.Unlock()
}

// IsFresh reports whether key has an entry younger than maxAge.
func (c *Cache[T]) IsFresh(key string, maxAge time.Duration) bool {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return c.now().Sub(e.StoredAt) < maxAge
}

// Len returns the current number of entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return n
}

// FetchWithFallback is the composite read used by callers.
//
// If a fresh entry exists it is returned without invoking fetch. Otherwise
// fetch runs once: on success the value is stored and returned; on failure an
// existing entry (fresh or stale) is served, and when none exists the supplied
// empty default is returned. Fetch failures are logged, never propagated, so
// the pipeline trades staleness for availability.
func (c *Cache[T]) FetchWithFallback(ctx context.Context, key string, maxAge time.Duration, empty T, fetch func(ctx context.Context) (T, error)) T {
	if e, ok := c.Get(key); ok && c.now().Sub(e.StoredAt) < maxAge {
		return e.Value
	}

	v, err := fetch(ctx)
	if err == nil {
		c.Set(key, v)
		return v
	}

	if e, ok := c.Get(key); ok {
		c.log.Warn("fetch failed; serving stale entry",
			logx.String("key", key),
			logx.Duration("age", c.now().Sub(e.StoredAt)),
			logx.Err(err))
		return e.Value
	}

	c.log.Warn("fetch failed; no cached entry, returning empty default",
		logx.String("key", key),
		logx.Err(err))
	return empty
}
