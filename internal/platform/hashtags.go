package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	logx "trendpipe/pkg/logx"
)

const defaultHashtagBaseURL = "https://top-instagram-hashtags.p.rapidapi.com"

// HashtagClient fetches hashtag popularity data per category from the
// aggregator API. Authenticated with an API key header, no rotation.
type HashtagClient struct {
	baseURL string
	apiKey  string
	apiHost string
	httpc   *http.Client
	log     logx.Logger
}

type HashtagOption func(*HashtagClient)

func WithHashtagBaseURL(u string) HashtagOption {
	return func(c *HashtagClient) { c.baseURL = u }
}

func NewHashtagClient(apiKey string, timeout time.Duration, log logx.Logger, opts ...HashtagOption) *HashtagClient {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := retryablehttp.NewClient()
	r.RetryMax = 2
	r.Logger = nil
	r.HTTPClient.Timeout = timeout

	c := &HashtagClient{
		baseURL: defaultHashtagBaseURL,
		apiKey:  apiKey,
		apiHost: "top-instagram-hashtags.p.rapidapi.com",
		httpc:   r.StandardClient(),
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Hashtags returns the raw hashtag list for category.
func (c *HashtagClient) Hashtags(ctx context.Context, category string) ([]RawHashtag, error) {
	u := c.baseURL + "/hashtags?" + url.Values{"category": {category}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.apiHost)

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
		return nil, fmt.Errorf("hashtags %q: status %d", category, resp.StatusCode)
	}

	var out []RawHashtag
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("hashtags %q: malformed payload: %w", category, err)
	}
	return out, nil
}
