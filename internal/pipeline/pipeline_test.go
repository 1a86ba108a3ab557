package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trendpipe/internal/generate"
	"trendpipe/internal/platform"
	"trendpipe/internal/procbridge"
	"trendpipe/internal/storage"
	logx "trendpipe/pkg/logx"
)

type fakeTrends struct {
	trends  []platform.TrendRecord
	samples map[string][]platform.Post
}

func (f *fakeTrends) TrendingTopics(ctx context.Context) []platform.TrendRecord { return f.trends }
func (f *fakeTrends) SampleContent(ctx context.Context, topic string, count int) []platform.Post {
	return f.samples[topic]
}

type fakeBridge struct {
	ready  bool
	result procbridge.Result
	calls  int
}

func (f *fakeBridge) CheckReadiness(ctx context.Context) bool { return f.ready }
func (f *fakeBridge) GenerateContent(ctx context.Context, script string, options any) procbridge.Result {
	f.calls++
	return f.result
}

type fakeComposer struct {
	text, prompt string
	err          error
	calls        int
	gotTopics    []generate.TopicSamples
}

func (f *fakeComposer) Compose(ctx context.Context, topics []generate.TopicSamples) (string, string, error) {
	f.calls++
	f.gotTopics = topics
	return f.text, f.prompt, f.err
}

type fakePublisher struct {
	id    string
	err   error
	calls int
	text  string
}

func (f *fakePublisher) PostContent(ctx context.Context, text string) (string, error) {
	f.calls++
	f.text = text
	return f.id, f.err
}

type fakeContentStore struct {
	mu        sync.Mutex
	items     []storage.ContentItem
	published map[string]string
	createErr error
}

func (f *fakeContentStore) CreateContentItem(ctx context.Context, item storage.ContentItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeContentStore) MarkPublished(ctx context.Context, id, externalID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = map[string]string{}
	}
	f.published[id] = externalID
	return nil
}

type fakeAnnouncer struct {
	calls int
	last  storage.ContentItem
}

func (f *fakeAnnouncer) AnnouncePublished(ctx context.Context, item storage.ContentItem) error {
	f.calls++
	f.last = item
	return nil
}

func fixtureTrends() *fakeTrends {
	return &fakeTrends{
		trends: []platform.TrendRecord{
			{Name: "#A", Volume: 100},
			{Name: "#B", Volume: 90},
			{Name: "#C", Volume: 80},
			{Name: "#D", Volume: 70},
		},
		samples: map[string][]platform.Post{
			"#A": {{ID: "1", Text: "about A"}},
		},
	}
}

func TestRunFallbackPersistsOneRecord(t *testing.T) {
	t.Parallel()
	trends := fixtureTrends()
	bridge := &fakeBridge{ready: false}
	comp := &fakeComposer{text: "generated post", prompt: "the prompt"}
	store := &fakeContentStore{}

	p := New(Config{}, trends, bridge, comp, nil, store, nil, logx.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if bridge.calls != 0 {
		t.Fatalf("bridge invoked %d times while not ready", bridge.calls)
	}
	if comp.calls != 1 {
		t.Fatalf("composer called %d times, want 1", comp.calls)
	}
	if len(store.items) != 1 {
		t.Fatalf("persisted %d items, want 1", len(store.items))
	}
	item := store.items[0]
	if item.Content != "generated post" || item.Prompt != "the prompt" {
		t.Fatalf("item = %+v", item)
	}
	if item.Posted {
		t.Fatal("item should not be marked posted without publishing")
	}
	if item.ID == "" {
		t.Fatal("item has no id")
	}
	// Only the top three trends feed generation.
	if len(item.SourceTopics) != 3 || item.SourceTopics[0].Name != "#A" || item.SourceTopics[2].Name != "#C" {
		t.Fatalf("source topics = %+v", item.SourceTopics)
	}
	if len(comp.gotTopics) != 3 || len(comp.gotTopics[0].Samples) != 1 {
		t.Fatalf("composer topics = %+v", comp.gotTopics)
	}
}

func TestRunUsesBridgeWhenReady(t *testing.T) {
	t.Parallel()
	artifact := filepath.Join(t.TempDir(), "post.txt")
	if err := os.WriteFile(artifact, []byte("bridge wrote this\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bridge := &fakeBridge{
		ready:  true,
		result: procbridge.Result{Success: true, OutputPath: artifact, Prompt: "bridge prompt"},
	}
	comp := &fakeComposer{text: "fallback"}
	store := &fakeContentStore{}

	p := New(Config{}, fixtureTrends(), bridge, comp, nil, store, nil, logx.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bridge.calls != 1 || comp.calls != 0 {
		t.Fatalf("bridge calls = %d, composer calls = %d", bridge.calls, comp.calls)
	}
	if got := store.items[0].Content; got != "bridge wrote this" {
		t.Fatalf("content = %q", got)
	}
	if store.items[0].Prompt != "bridge prompt" {
		t.Fatalf("prompt = %q", store.items[0].Prompt)
	}
}

func TestRunBridgeFailureFallsBack(t *testing.T) {
	t.Parallel()
	bridge := &fakeBridge{ready: true, result: procbridge.Result{Success: false, Message: "boom"}}
	comp := &fakeComposer{text: "fallback post", prompt: "p"}
	store := &fakeContentStore{}

	p := New(Config{}, fixtureTrends(), bridge, comp, nil, store, nil, logx.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if comp.calls != 1 {
		t.Fatalf("composer calls = %d, want 1", comp.calls)
	}
	if store.items[0].Content != "fallback post" {
		t.Fatalf("content = %q", store.items[0].Content)
	}
}

func TestRunBothGeneratorsFail(t *testing.T) {
	t.Parallel()
	bridge := &fakeBridge{ready: true, result: procbridge.Result{Success: false, Message: "no model"}}
	comp := &fakeComposer{err: errors.New("api down")}
	store := &fakeContentStore{}

	p := New(Config{}, fixtureTrends(), bridge, comp, nil, store, nil, logx.Nop())
	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected generation failure")
	}
	if len(store.items) != 0 {
		t.Fatalf("persisted %d items after failed generation", len(store.items))
	}
}

func TestRunEmptyTrends(t *testing.T) {
	t.Parallel()
	comp := &fakeComposer{text: "x"}
	store := &fakeContentStore{}
	p := New(Config{}, &fakeTrends{}, nil, comp, nil, store, nil, logx.Nop())
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error for empty trends")
	}
	if comp.calls != 0 || len(store.items) != 0 {
		t.Fatal("nothing should run on empty trends")
	}
}

func TestRunPublishesAndAnnounces(t *testing.T) {
	t.Parallel()
	comp := &fakeComposer{text: "publish me", prompt: "p"}
	store := &fakeContentStore{}
	pub := &fakePublisher{id: "ext-123"}
	ann := &fakeAnnouncer{}

	p := New(Config{Publish: true}, fixtureTrends(), nil, comp, pub, store, ann, logx.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pub.calls != 1 || pub.text != "publish me" {
		t.Fatalf("publisher calls = %d, text = %q", pub.calls, pub.text)
	}
	id := store.items[0].ID
	if store.published[id] != "ext-123" {
		t.Fatalf("published = %+v", store.published)
	}
	if ann.calls != 1 || ann.last.ExternalID != "ext-123" || !ann.last.Posted {
		t.Fatalf("announcement = %+v (calls %d)", ann.last, ann.calls)
	}
}

func TestRunPublishFailureKeepsItem(t *testing.T) {
	t.Parallel()
	comp := &fakeComposer{text: "post", prompt: "p"}
	store := &fakeContentStore{}
	pub := &fakePublisher{err: errors.New("403 forbidden")}

	p := New(Config{Publish: true}, fixtureTrends(), nil, comp, pub, store, nil, logx.Nop())
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected publish error")
	}
	// The item stays persisted and unposted for a later retry.
	if len(store.items) != 1 || store.items[0].Posted {
		t.Fatalf("items = %+v", store.items)
	}
	if len(store.published) != 0 {
		t.Fatalf("published = %+v", store.published)
	}
}
