package platform

import "time"

// TrendRecord is one trending topic. Immutable once returned; consumers see
// the list ordered by descending volume.
type TrendRecord struct {
	Name   string `json:"name"`
	Volume int    `json:"volume"`
}

// Post is a sample post attached to a trending topic.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RawHashtag is the hashtag source API's wire shape.
type RawHashtag struct {
	Name       string  `json:"name"`
	Engagement float64 `json:"engagement"`
	Popularity float64 `json:"popularity"`
	PostCount  int     `json:"post_count"`
}
