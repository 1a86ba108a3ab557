// Package generate composes post text through a chat-completion API. It is
// the in-process alternative used when the external generator is unavailable.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"trendpipe/internal/platform"
	logx "trendpipe/pkg/logx"
)

const defaultPersona = "You are a well-known social media personality. You write sharp, witty, slightly flirty commentary on whatever is trending."

// Config holds completion API settings.
type Config struct {
	BaseURL     string // e.g. https://api.openai.com/v1
	APIKey      string
	Model       string        // default gpt-4
	MaxTokens   int           // default 200
	Temperature float64       // default 0.7
	Timeout     time.Duration // default 30s
	Persona     string        // system prompt, defaults to a generic persona
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 200
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Persona == "" {
		c.Persona = defaultPersona
	}
	return c
}

// TopicSamples pairs a trending topic with example posts gathered for it.
type TopicSamples struct {
	Topic   platform.TrendRecord
	Samples []platform.Post
}

type Generator struct {
	cfg   Config
	httpc *http.Client
	log   logx.Logger
}

func New(cfg Config, log logx.Logger) *Generator {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	r := retryablehttp.NewClient()
	r.RetryMax = 2
	r.HTTPClient.Timeout = cfg.Timeout
	r.Logger = nil
	return &Generator{cfg: cfg, httpc: r.StandardClient(), log: log}
}

// WithHTTPClient replaces the underlying client, for tests.
func (g *Generator) WithHTTPClient(c *http.Client) *Generator {
	g.httpc = c
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Compose builds the persona prompt from topics and their sample posts and
// asks the completion API for a single post. It returns the generated text
// together with the prompt that produced it.
func (g *Generator) Compose(ctx context.Context, topics []TopicSamples) (text, prompt string, err error) {
	if len(topics) == 0 {
		return "", "", fmt.Errorf("no topics to compose from")
	}
	prompt = buildPrompt(topics)

	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: g.cfg.Persona},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("completion API status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", "", fmt.Errorf("decoding completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", "", fmt.Errorf("completion API returned no choices")
	}

	text = strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", "", fmt.Errorf("completion API returned empty content")
	}
	g.log.Debug("composed post", logx.Int("chars", len(text)), logx.String("model", g.cfg.Model))
	return text, prompt, nil
}

// buildPrompt interleaves topics with their sample posts so the model can
// pick up the register people actually use for each trend.
func buildPrompt(topics []TopicSamples) string {
	var sb strings.Builder
	sb.WriteString("Write one attention-grabbing post about the trending topics below.\n")
	sb.WriteString("Stay in character. Keep it under 280 characters. ")
	sb.WriteString("Emoji are fine in moderation, hashtags are fine.\n\n")
	sb.WriteString("TRENDING TOPICS AND SAMPLE POSTS:\n")
	for _, ts := range topics {
		fmt.Fprintf(&sb, "TREND: %s\n", ts.Topic.Name)
		if len(ts.Samples) > 0 {
			sb.WriteString("POSTS:\n")
			for _, p := range ts.Samples {
				sb.WriteString(p.Text)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("POST:")
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
