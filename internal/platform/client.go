// Package platform holds the narrow HTTP clients for the external social
// platform (trends, recent-post search, publishing) and the hashtag source API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"trendpipe/internal/credentials"
	logx "trendpipe/pkg/logx"
)

const defaultBaseURL = "https://api.twitter.com"

// Client talks to the trend/search platform API. Read calls authenticate with
// a rotated bearer token picked per request; PostContent always signs with the
// primary identity.
//
// Reads are single-attempt: a failed fetch is recovered by the caller's
// time-driven cache refresh, not by retrying here.
type Client struct {
	baseURL string
	pool    *credentials.Pool
	httpc   *http.Client
	log     logx.Logger
}

type Option func(*Client)

// WithBaseURL overrides the API host (tests point this at httptest servers).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

func NewClient(pool *credentials.Pool, timeout time.Duration, log logx.Logger, opts ...Option) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	// retryablehttp for transport hygiene (timeouts, conn reuse); RetryMax=0
	// keeps the single-attempt read semantics.
	r := retryablehttp.NewClient()
	r.RetryMax = 0
	r.Logger = nil
	r.HTTPClient.Timeout = timeout

	c := &Client{
		baseURL: defaultBaseURL,
		pool:    pool,
		httpc:   r.StandardClient(),
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Trending fetches the raw trend list for a region (WOEID). The result is
// sorted by descending volume and capped at 10 entries, matching what the
// pipeline consumes.
func (c *Client) Trending(ctx context.Context, region int) ([]TrendRecord, error) {
	q := url.Values{"id": {strconv.Itoa(region)}}
	body, err := c.get(ctx, "/1.1/trends/place.json", q, c.pool.Pick().BearerToken)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Trends []struct {
			Name        string `json:"name"`
			TweetVolume *int   `json:"tweet_volume"`
		} `json:"trends"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("trending: malformed payload: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("trending: empty payload")
	}

	out := make([]TrendRecord, 0, len(raw[0].Trends))
	for _, t := range raw[0].Trends {
		vol := 0
		if t.TweetVolume != nil {
			vol = *t.TweetVolume
		}
		out = append(out, TrendRecord{Name: t.Name, Volume: vol})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

// RecentPosts searches recent posts matching query.
func (c *Client) RecentPosts(ctx context.Context, query string, maxResults int) ([]Post, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	q := url.Values{
		"query":        {query},
		"max_results":  {strconv.Itoa(maxResults)},
		"tweet.fields": {"author_id,created_at,text"},
	}
	body, err := c.get(ctx, "/2/tweets/search/recent", q, c.pool.Pick().BearerToken)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Data []struct {
			ID        string    `json:"id"`
			Text      string    `json:"text"`
			AuthorID  string    `json:"author_id"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("recent posts: malformed payload: %w", err)
	}

	out := make([]Post, 0, len(raw.Data))
	for _, p := range raw.Data {
		out = append(out, Post{ID: p.ID, Text: p.Text, AuthorID: p.AuthorID, CreatedAt: p.CreatedAt})
	}
	return out, nil
}

// PostContent publishes text with the primary identity and returns the
// platform-assigned ID. Writes are never rotated so publishing stays
// attributable to one account.
func (c *Client) PostContent(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.pool.Primary().AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("post content: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("post content: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var raw struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("post content: malformed response: %w", err)
	}
	return raw.Data.ID, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, bearer string) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
