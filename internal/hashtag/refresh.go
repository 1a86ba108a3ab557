package hashtag

import (
	"context"
	"time"

	"trendpipe/internal/platform"
	"trendpipe/internal/storage"
	logx "trendpipe/pkg/logx"
)

// RefreshConfig controls the bulk refresh job.
type RefreshConfig struct {
	Categories []string // instagram categories to refresh
	Regions    []int    // trend regions (WOEIDs)
	Pause      time.Duration
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	if len(c.Categories) == 0 {
		c.Categories = []string{"general", "fashion", "travel", "food", "fitness", "beauty"}
	}
	if len(c.Regions) == 0 {
		c.Regions = []int{1}
	}
	if c.Pause <= 0 {
		c.Pause = 2 * time.Second
	}
	return c
}

// HashtagFetcher fetches raw hashtags per category.
type HashtagFetcher interface {
	Hashtags(ctx context.Context, category string) ([]platform.RawHashtag, error)
}

// TrendFetcher fetches the raw trend list per region.
type TrendFetcher interface {
	Trending(ctx context.Context, region int) ([]platform.TrendRecord, error)
}

// UpsertStore is the slice of storage the refresher writes.
type UpsertStore interface {
	UpsertHashtags(ctx context.Context, recs []storage.HashtagRecord) error
}

// Refresher keeps the hashtag popularity table current. Partial upstream
// failures are logged and skipped; the job never fails the whole run over a
// single category.
type Refresher struct {
	cfg      RefreshConfig
	hashtags HashtagFetcher
	trends   TrendFetcher
	store    UpsertStore
	log      logx.Logger
}

func NewRefresher(cfg RefreshConfig, hashtags HashtagFetcher, trends TrendFetcher, store UpsertStore, log logx.Logger) *Refresher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Refresher{cfg: cfg.withDefaults(), hashtags: hashtags, trends: trends, store: store, log: log}
}

// RefreshAll updates every configured category and region. The inter-category
// pause keeps the upstream aggregator's rate limit happy.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	start := time.Now()
	r.log.Info("hashtag refresh started",
		logx.Int("categories", len(r.cfg.Categories)),
		logx.Int("regions", len(r.cfg.Regions)))

	for i, cat := range r.cfg.Categories {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.Pause):
			}
		}
		if err := r.refreshCategory(ctx, cat); err != nil {
			r.log.Warn("category refresh failed", logx.String("category", cat), logx.Err(err))
		}
	}

	for _, region := range r.cfg.Regions {
		if err := r.refreshTrends(ctx, region); err != nil {
			r.log.Warn("trend refresh failed", logx.Int("region", region), logx.Err(err))
		}
	}

	r.log.Info("hashtag refresh finished", logx.Duration("took", time.Since(start)))
	return nil
}

// UpsertHashtags stores raw aggregator hashtags under category.
func (r *Refresher) UpsertHashtags(ctx context.Context, raw []platform.RawHashtag, category string) error {
	now := time.Now()
	recs := make([]storage.HashtagRecord, 0, len(raw))
	for _, h := range raw {
		recs = append(recs, storage.HashtagRecord{
			Platform:   storage.PlatformInstagram,
			Tag:        h.Name,
			Category:   category,
			Engagement: h.Engagement,
			Popularity: h.Popularity,
			PostCount:  h.PostCount,
			UpdatedAt:  now,
		})
	}
	if err := r.store.UpsertHashtags(ctx, recs); err != nil {
		return err
	}
	r.log.Info("hashtags stored", logx.Int("count", len(recs)), logx.String("category", category))
	return nil
}

// UpsertTrends stores platform trends under the "trending" category.
// Popularity is volume scaled down so it stays comparable with the
// aggregator's popularity range.
func (r *Refresher) UpsertTrends(ctx context.Context, trends []platform.TrendRecord) error {
	now := time.Now()
	recs := make([]storage.HashtagRecord, 0, len(trends))
	for _, t := range trends {
		recs = append(recs, storage.HashtagRecord{
			Platform:   storage.PlatformTwitter,
			Tag:        t.Name,
			Category:   "trending",
			Engagement: float64(t.Volume),
			Popularity: float64(t.Volume) / 1000,
			UpdatedAt:  now,
		})
	}
	if err := r.store.UpsertHashtags(ctx, recs); err != nil {
		return err
	}
	r.log.Info("trends stored", logx.Int("count", len(recs)))
	return nil
}

func (r *Refresher) refreshCategory(ctx context.Context, category string) error {
	raw, err := r.hashtags.Hashtags(ctx, category)
	if err != nil {
		return err
	}
	return r.UpsertHashtags(ctx, raw, category)
}

func (r *Refresher) refreshTrends(ctx context.Context, region int) error {
	trends, err := r.trends.Trending(ctx, region)
	if err != nil {
		return err
	}
	return r.UpsertTrends(ctx, trends)
}
