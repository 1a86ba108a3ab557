package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Platform identifies the source network of a hashtag record.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// HashtagRecord is one row of the hashtag popularity table.
// Unique per (platform, tag); bulk refreshes upsert and overwrite the
// engagement/popularity/post-count fields along with the category from the
// most recent classification run.
type HashtagRecord struct {
	Platform   Platform
	Tag        string
	Category   string
	Engagement float64
	Popularity float64
	PostCount  int
	UpdatedAt  time.Time
}

// Topic is a compact (name, volume) pair persisted with generated content.
type Topic struct {
	Name   string `json:"name"`
	Volume int    `json:"volume"`
}

// ContentItem is one generated piece of content. The pipeline creates one row
// per generated item and updates it after publishing.
type ContentItem struct {
	ID           string
	Content      string
	Prompt       string
	SourceTopics []Topic
	Posted       bool
	PublishedAt  *time.Time
	ExternalID   string
	CreatedAt    time.Time
}
