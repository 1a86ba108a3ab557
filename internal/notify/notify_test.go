package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"trendpipe/internal/storage"
	logx "trendpipe/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	chats []int64
	err   error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if chat, ok := to.(*tele.Chat); ok {
		f.chats = append(f.chats, chat.ID)
	}
	if s, ok := what.(string); ok {
		f.texts = append(f.texts, s)
	}
	return &tele.Message{ID: len(f.texts)}, nil
}

func testNotifier(t *testing.T, fs *fakeSender) *Notifier {
	t.Helper()
	n, err := New(Config{Enabled: false, RatePerSec: 100}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	n.cfg.Enabled = true
	n.cfg.ChatID = 42
	return n.WithSender(fs)
}

func TestAnnouncePublished(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n := testNotifier(t, fs)

	item := storage.ContentItem{
		ExternalID: "1234567890",
		Content:    "hot take of the day",
		SourceTopics: []storage.Topic{
			{Name: "#WorldCup", Volume: 120000},
			{Name: "#F1", Volume: 9000},
		},
	}
	if err := n.AnnouncePublished(context.Background(), item); err != nil {
		t.Fatalf("AnnouncePublished: %v", err)
	}
	if len(fs.texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fs.texts))
	}
	msg := fs.texts[0]
	for _, want := range []string{"1234567890", "hot take of the day", "#WorldCup", "#F1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if fs.chats[0] != 42 {
		t.Fatalf("chat id = %d, want 42", fs.chats[0])
	}
}

func TestDisabledReturnsErrDisabled(t *testing.T) {
	t.Parallel()
	n, err := New(Config{Enabled: false}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	err = n.AnnouncePublished(context.Background(), storage.ContentItem{Content: "x"})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestEnabledRequiresTokenAndChat(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Enabled: true}, logx.Nop()); err == nil {
		t.Fatal("expected config error with no token")
	}
}

func TestSendErrorPropagates(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{err: errors.New("telegram: 429")}
	n := testNotifier(t, fs)
	if err := n.AnnounceFailure(context.Background(), "content", errors.New("boom")); err == nil {
		t.Fatal("expected send error")
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n, err := New(Config{Enabled: false, RatePerSec: 1}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	n.cfg.Enabled = true
	n.cfg.ChatID = 1
	n.WithSender(fs)

	// First send consumes the only token; a cancelled context must not wait.
	if err := n.AnnounceFailure(context.Background(), "a", errors.New("x")); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.AnnounceFailure(ctx, "b", errors.New("y")); err == nil {
		t.Fatal("expected context error while rate limited")
	}
}
