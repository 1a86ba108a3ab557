// Package notify announces published content to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"trendpipe/internal/storage"
	logx "trendpipe/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

// Config holds the announcement channel settings.
type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int           // default 1
	Timeout    time.Duration // per-send bound, default 10s
}

// Sender is the part of the Telegram bot the notifier uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier rate-limits and serializes announcements to one chat. Safe for
// concurrent use.
type Notifier struct {
	mu      sync.Mutex
	cfg     Config
	bot     Sender
	limiter *rate.Limiter
	log     logx.Logger
}

// New builds a notifier. A disabled config returns a notifier whose Announce
// methods report ErrDisabled; the Telegram bot is only dialed when enabled.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{cfg: withDefaults(cfg), log: log}
	n.limiter = rate.NewLimiter(rate.Limit(n.cfg.RatePerSec), n.cfg.RatePerSec)

	if !cfg.Enabled {
		return n, nil
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.New("notify: enabled but token or chat id missing")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: creating bot: %w", err)
	}
	n.bot = bot
	return n, nil
}

// WithSender substitutes the Telegram client, for tests.
func (n *Notifier) WithSender(s Sender) *Notifier {
	n.mu.Lock()
	n.bot = s
	n.mu.Unlock()
	return n
}

func withDefaults(cfg Config) Config {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg
}

// AnnouncePublished posts a short summary of a freshly published item.
func (n *Notifier) AnnouncePublished(ctx context.Context, item storage.ContentItem) error {
	var topics []string
	for _, t := range item.SourceTopics {
		topics = append(topics, t.Name)
	}
	text := fmt.Sprintf("📣 Published %s\n\n%s", item.ExternalID, item.Content)
	if len(topics) > 0 {
		text += "\n\nTopics: " + strings.Join(topics, ", ")
	}
	return n.send(ctx, text)
}

// AnnounceFailure reports a failed pipeline run so an operator can look at it.
func (n *Notifier) AnnounceFailure(ctx context.Context, task string, cause error) error {
	return n.send(ctx, fmt.Sprintf("⚠️ Task %q failed: %v", task, cause))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	n.mu.Lock()
	cfg := n.cfg
	bot := n.bot
	lim := n.limiter
	n.mu.Unlock()

	if !cfg.Enabled || bot == nil {
		return ErrDisabled
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := bot.Send(&tele.Chat{ID: cfg.ChatID}, text)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			n.log.Warn("telegram send failed", logx.Err(err))
			return err
		}
		return nil
	}
}
