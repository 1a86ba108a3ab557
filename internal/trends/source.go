// Package trends serves trending topics and per-topic sample posts through
// the TTL cache, so upstream flakiness degrades to stale data instead of
// failing the pipeline.
package trends

import (
	"context"
	"fmt"
	"time"

	"trendpipe/internal/cache"
	"trendpipe/internal/platform"
	logx "trendpipe/pkg/logx"
)

// Config holds the cache TTLs. Freshness windows are deliberately different:
// the trend list moves slowly, sample posts churn faster.
type Config struct {
	TrendTTL  time.Duration // default 1h
	SampleTTL time.Duration // default 30m
	Region    int           // WOEID; default 1 (worldwide)
}

func (c Config) withDefaults() Config {
	if c.TrendTTL <= 0 {
		c.TrendTTL = time.Hour
	}
	if c.SampleTTL <= 0 {
		c.SampleTTL = 30 * time.Minute
	}
	if c.Region <= 0 {
		c.Region = 1
	}
	return c
}

// Fetcher is the slice of the platform client the source needs.
type Fetcher interface {
	Trending(ctx context.Context, region int) ([]platform.TrendRecord, error)
	RecentPosts(ctx context.Context, query string, maxResults int) ([]platform.Post, error)
}

type Source struct {
	cfg    Config
	client Fetcher
	log    logx.Logger

	trendCache  *cache.Cache[[]platform.TrendRecord]
	sampleCache *cache.Cache[[]platform.Post]
}

func NewSource(cfg Config, client Fetcher, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{
		cfg:         cfg.withDefaults(),
		client:      client,
		log:         log,
		trendCache:  cache.New[[]platform.TrendRecord](log.With(logx.String("cache", "trends"))),
		sampleCache: cache.New[[]platform.Post](log.With(logx.String("cache", "samples"))),
	}
}

// TrendingTopics returns the current trend list for the configured region,
// ordered by descending volume. Upstream failure serves the last cached list;
// a cold cache yields an empty list, never an error.
func (s *Source) TrendingTopics(ctx context.Context) []platform.TrendRecord {
	key := fmt.Sprintf("trends:%d", s.cfg.Region)
	return s.trendCache.FetchWithFallback(ctx, key, s.cfg.TrendTTL, []platform.TrendRecord{},
		func(ctx context.Context) ([]platform.TrendRecord, error) {
			return s.client.Trending(ctx, s.cfg.Region)
		})
}

// SampleContent returns up to count recent posts for a topic, cached per
// topic with the shorter sample TTL.
func (s *Source) SampleContent(ctx context.Context, topic string, count int) []platform.Post {
	if count <= 0 {
		count = 5
	}
	key := "samples:" + topic
	posts := s.sampleCache.FetchWithFallback(ctx, key, s.cfg.SampleTTL, []platform.Post{},
		func(ctx context.Context) ([]platform.Post, error) {
			return s.client.RecentPosts(ctx, topic, count)
		})
	if len(posts) > count {
		posts = posts[:count]
	}
	return posts
}
