// Package pipeline runs one content cycle per scheduler tick: pick up current
// trends, compose a post from them, persist it and optionally publish it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"trendpipe/internal/generate"
	"trendpipe/internal/platform"
	"trendpipe/internal/procbridge"
	"trendpipe/internal/storage"
	logx "trendpipe/pkg/logx"
)

const (
	topTrendCount    = 3
	samplesPerTrend  = 3
	generatorScript  = "generate_post.py"
	defaultMaxLength = 280
)

// TrendSource supplies cached trends and per-topic sample posts.
type TrendSource interface {
	TrendingTopics(ctx context.Context) []platform.TrendRecord
	SampleContent(ctx context.Context, topic string, count int) []platform.Post
}

// Bridge is the external generator boundary.
type Bridge interface {
	CheckReadiness(ctx context.Context) bool
	GenerateContent(ctx context.Context, script string, options any) procbridge.Result
}

// Composer is the in-process fallback generator.
type Composer interface {
	Compose(ctx context.Context, topics []generate.TopicSamples) (text, prompt string, err error)
}

// Publisher posts finished content under the primary credential.
type Publisher interface {
	PostContent(ctx context.Context, text string) (string, error)
}

// ContentStore persists pipeline output.
type ContentStore interface {
	CreateContentItem(ctx context.Context, item storage.ContentItem) error
	MarkPublished(ctx context.Context, id, externalID string, at time.Time) error
}

// Announcer reports published items. Implementations may be disabled.
type Announcer interface {
	AnnouncePublished(ctx context.Context, item storage.ContentItem) error
}

type Config struct {
	Publish   bool   // post to the platform after persisting
	Script    string // generator script name, default generate_post.py
	MaxLength int    // character budget passed to the generator
}

// Pipeline wires the stages together. Announcer and Bridge may be nil.
type Pipeline struct {
	cfg       Config
	trends    TrendSource
	bridge    Bridge
	composer  Composer
	publisher Publisher
	store     ContentStore
	announcer Announcer
	log       logx.Logger
}

func New(cfg Config, trends TrendSource, bridge Bridge, composer Composer, publisher Publisher, store ContentStore, announcer Announcer, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Script == "" {
		cfg.Script = generatorScript
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultMaxLength
	}
	return &Pipeline{
		cfg:       cfg,
		trends:    trends,
		bridge:    bridge,
		composer:  composer,
		publisher: publisher,
		store:     store,
		announcer: announcer,
		log:       log,
	}
}

// Run executes one cycle. Empty trends end the tick early; the returned error
// only feeds run history, the schedule itself is never affected by it.
func (p *Pipeline) Run(ctx context.Context) error {
	all := p.trends.TrendingTopics(ctx)
	if len(all) == 0 {
		p.log.Warn("no trends available, skipping cycle")
		return fmt.Errorf("no trends available")
	}
	top := all
	if len(top) > topTrendCount {
		top = top[:topTrendCount]
	}

	gathered := make([]generate.TopicSamples, 0, len(top))
	for _, tr := range top {
		gathered = append(gathered, generate.TopicSamples{
			Topic:   tr,
			Samples: p.trends.SampleContent(ctx, tr.Name, samplesPerTrend),
		})
	}

	text, prompt, err := p.generateText(ctx, gathered)
	if err != nil {
		return fmt.Errorf("generating content: %w", err)
	}

	item := storage.ContentItem{
		ID:      uuid.NewString(),
		Content: text,
		Prompt:  prompt,
		Posted:  false,
	}
	for _, tr := range top {
		item.SourceTopics = append(item.SourceTopics, storage.Topic{Name: tr.Name, Volume: tr.Volume})
	}
	if err := p.store.CreateContentItem(ctx, item); err != nil {
		return fmt.Errorf("persisting content item: %w", err)
	}
	p.log.Info("content item created",
		logx.String("id", item.ID),
		logx.Int("chars", len(text)),
		logx.Int("topics", len(item.SourceTopics)))

	if !p.cfg.Publish {
		return nil
	}

	externalID, err := p.publisher.PostContent(ctx, text)
	if err != nil {
		return fmt.Errorf("publishing content item %s: %w", item.ID, err)
	}
	publishedAt := time.Now().UTC()
	if err := p.store.MarkPublished(ctx, item.ID, externalID, publishedAt); err != nil {
		return fmt.Errorf("marking item %s published: %w", item.ID, err)
	}
	p.log.Info("content published", logx.String("id", item.ID), logx.String("external_id", externalID))

	if p.announcer != nil {
		item.Posted = true
		item.ExternalID = externalID
		item.PublishedAt = &publishedAt
		if err := p.announcer.AnnouncePublished(ctx, item); err != nil {
			p.log.Warn("announcement failed", logx.Err(err))
		}
	}
	return nil
}

// generateText prefers the external generator; when it is not ready or its
// run fails, the in-process composer takes over.
func (p *Pipeline) generateText(ctx context.Context, topics []generate.TopicSamples) (text, prompt string, err error) {
	if p.bridge != nil && p.bridge.CheckReadiness(ctx) {
		options := bridgeOptions(topics, p.cfg.MaxLength)
		res := p.bridge.GenerateContent(ctx, p.cfg.Script, options)
		if res.Success {
			caption, err := readCaption(res.OutputPath)
			if err == nil {
				return caption, res.Prompt, nil
			}
			p.log.Warn("generator artifact unreadable", logx.String("path", res.OutputPath), logx.Err(err))
		} else {
			p.log.Warn("external generator failed, falling back", logx.String("message", res.Message))
		}
	}

	text, prompt, err = p.composer.Compose(ctx, topics)
	if err != nil {
		return "", "", fmt.Errorf("all generators failed: %w", err)
	}
	return text, prompt, nil
}

// readCaption loads the post text the external generator wrote to its output
// artifact.
func readCaption(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("generator artifact is empty")
	}
	return text, nil
}

// bridgeOptions is the JSON payload handed to the external generator.
func bridgeOptions(topics []generate.TopicSamples, maxLength int) map[string]any {
	names := make([]string, 0, len(topics))
	samples := map[string][]string{}
	for _, ts := range topics {
		names = append(names, ts.Topic.Name)
		for _, s := range ts.Samples {
			samples[ts.Topic.Name] = append(samples[ts.Topic.Name], s.Text)
		}
	}
	return map[string]any{
		"trends":     names,
		"samples":    samples,
		"max_length": maxLength,
	}
}
