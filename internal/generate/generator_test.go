package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trendpipe/internal/platform"
	logx "trendpipe/pkg/logx"
)

func sampleTopics() []TopicSamples {
	return []TopicSamples{
		{
			Topic: platform.TrendRecord{Name: "#WorldCup", Volume: 120000},
			Samples: []platform.Post{
				{ID: "1", Text: "what a match"},
				{ID: "2", Text: "extra time again"},
			},
		},
		{
			Topic: platform.TrendRecord{Name: "#MondayMotivation", Volume: 8000},
		},
	}
}

func TestComposeSendsPersonaAndPrompt(t *testing.T) {
	t.Parallel()
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  Fresh take on the cup! ⚽ #WorldCup  "}},
			},
		})
	}))
	defer srv.Close()

	g := New(Config{BaseURL: srv.URL, APIKey: "test-key", Persona: "You are Sienna."}, logx.Nop())
	text, prompt, err := g.Compose(context.Background(), sampleTopics())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if text != "Fresh take on the cup! ⚽ #WorldCup" {
		t.Fatalf("text = %q", text)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Messages[0].Content != "You are Sienna." {
		t.Fatalf("system prompt = %q", got.Messages[0].Content)
	}
	if !strings.Contains(prompt, "TREND: #WorldCup") || !strings.Contains(prompt, "what a match") {
		t.Fatalf("prompt missing trend data:\n%s", prompt)
	}
	if got.Model != "gpt-4" || got.MaxTokens != 200 {
		t.Fatalf("defaults not applied: model=%s maxTokens=%d", got.Model, got.MaxTokens)
	}
}

func TestComposeErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := New(Config{BaseURL: srv.URL, APIKey: "k"}, logx.Nop()).WithHTTPClient(srv.Client())
	if _, _, err := g.Compose(context.Background(), sampleTopics()); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestComposeNoChoices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	g := New(Config{BaseURL: srv.URL, APIKey: "k"}, logx.Nop())
	if _, _, err := g.Compose(context.Background(), sampleTopics()); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestComposeNoTopics(t *testing.T) {
	t.Parallel()
	g := New(Config{BaseURL: "http://unused", APIKey: "k"}, logx.Nop())
	if _, _, err := g.Compose(context.Background(), nil); err == nil {
		t.Fatal("expected error with no topics")
	}
}
