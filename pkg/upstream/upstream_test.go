package upstream

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/models"
)

func newTestClient(t *testing.T, cfg config.UpstreamConfig) *HTTPClient {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return NewHTTP(cfg)
}

func TestGenerateOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model: %s", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `["Go generics","Redis caching"]`}},
			},
			"usage": map[string]int{"prompt_tokens": 1000, "completion_tokens": 500, "total_tokens": 1500},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, config.UpstreamConfig{
		Provider: "openai", URL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini", MaxTokens: 256,
	})

	res, err := c.Generate(context.Background(), Request{Prompt: "suggest topics"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != `["Go generics","Redis caching"]` {
		t.Errorf("unexpected text: %s", res.Text)
	}
	if res.Usage.TotalTokens != 1500 {
		t.Errorf("expected 1500 total tokens, got %d", res.Usage.TotalTokens)
	}
	// 1000 prompt tokens at 0.00015/1K plus 500 completion tokens at 0.0006/1K.
	if want := 0.00015 + 0.0003; math.Abs(res.CostUSD-want) > 1e-9 {
		t.Errorf("expected cost %v, got %v", want, res.CostUSD)
	}
}

func TestGenerateAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant" {
			t.Errorf("unexpected api key header: %s", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("unexpected version header: %s", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "claude-3-5-haiku-20241022",
			"content": []map[string]any{
				{"type": "text", "text": "An outline: "},
				{"type": "text", "text": "intro, body, close."},
			},
			"usage": map[string]int{"input_tokens": 200, "output_tokens": 100},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, config.UpstreamConfig{
		Provider: "anthropic", URL: srv.URL, APIKey: "sk-ant", Model: "claude-3-5-haiku-20241022",
	})

	res, err := c.Generate(context.Background(), Request{Prompt: "outline caching", MaxTokens: 128})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "An outline: intro, body, close." {
		t.Errorf("unexpected text: %s", res.Text)
	}
	if res.Usage.TotalTokens != 300 {
		t.Errorf("expected 300 total tokens, got %d", res.Usage.TotalTokens)
	}
	if want := 0.0002 + 0.0005; math.Abs(res.CostUSD-want) > 1e-9 {
		t.Errorf("expected cost %v, got %v", want, res.CostUSD)
	}
}

func TestGenerateOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "llama3" {
			t.Errorf("unexpected model: %s", req.Model)
		}
		if req.Stream {
			t.Error("expected stream disabled")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3",
			"response":          "1. Channels\n2. Goroutines",
			"prompt_eval_count": 42,
			"eval_count":        17,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, config.UpstreamConfig{Provider: "ollama", URL: srv.URL, Model: "llama3"})

	res, err := c.Generate(context.Background(), Request{Prompt: "topics"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "1. Channels\n2. Goroutines" {
		t.Errorf("unexpected text: %s", res.Text)
	}
	if res.Usage.TotalTokens != 59 {
		t.Errorf("expected 59 total tokens, got %d", res.Usage.TotalTokens)
	}
	if res.CostUSD != 0 {
		t.Errorf("expected local models to bill zero, got %v", res.CostUSD)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, config.UpstreamConfig{Provider: "openai", URL: srv.URL, APIKey: "k", Model: "gpt-4o-mini"})

	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewHTTP(config.UpstreamConfig{
		Provider: "ollama", URL: srv.URL, Model: "llama3", Timeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("call not bounded by configured timeout, took %v", elapsed)
	}
}

func TestGenerateEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, config.UpstreamConfig{Provider: "openai", URL: srv.URL, APIKey: "k", Model: "gpt-4o-mini"})

	if _, err := c.Generate(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Error("expected error for empty completion")
	}
}

func TestGenerateMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := newTestClient(t, config.UpstreamConfig{Provider: "anthropic", URL: srv.URL, APIKey: "k", Model: "m"})

	if _, err := c.Generate(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Error("expected error for malformed response body")
	}
}

func TestPricingOverridesAndFallbacks(t *testing.T) {
	p := NewPricing("openai", []config.PricingConfig{
		{Model: "house-model", PromptPer1K: 0.002, CompletionPer1K: 0.004},
	})

	usage := models.Usage{PromptTokens: 1000, CompletionTokens: 1000}
	if got := p.CostUSD("house-model", usage); math.Abs(got-0.006) > 1e-9 {
		t.Errorf("expected override rate 0.006, got %v", got)
	}
	// Hosted models without a table entry bill the generic rate.
	if got := p.CostUSD("unknown-model", usage); math.Abs(got-0.002) > 1e-9 {
		t.Errorf("expected generic rate 0.002, got %v", got)
	}

	local := NewPricing("ollama", nil)
	if got := local.CostUSD("llama3", usage); got != 0 {
		t.Errorf("expected local rate 0, got %v", got)
	}
}
