// Package upstream holds the HTTP client for the guarded AI provider. One
// gateway guards one provider; recovery from provider outages is the circuit
// breaker's job, not a failover chain's.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Request is one generation request.
type Request struct {
	Prompt    string
	MaxTokens int
}

// Result is a successful generation with its billed cost.
type Result struct {
	Text    string
	Model   string
	Usage   models.Usage
	CostUSD float64
}

// Client is the upstream the gateway guards.
type Client interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Provider() string
	Model() string
}

// HTTPClient calls an openai, anthropic, or ollama endpoint. Every call is
// bounded by the configured timeout regardless of the caller's context.
type HTTPClient struct {
	provider  string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	pricing   Pricing
	client    *http.Client
}

// NewHTTP builds a client from the upstream configuration.
func NewHTTP(cfg config.UpstreamConfig) *HTTPClient {
	return &HTTPClient{
		provider:  cfg.Provider,
		baseURL:   cfg.URL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		pricing:   NewPricing(cfg.Provider, cfg.Pricing),
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) Provider() string { return c.provider }

func (c *HTTPClient) Model() string { return c.model }

func (c *HTTPClient) Generate(ctx context.Context, req Request) (*Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	switch c.provider {
	case "anthropic":
		return c.generateAnthropic(ctx, req.Prompt, maxTokens)
	case "ollama":
		return c.generateOllama(ctx, req.Prompt)
	default:
		return c.generateOpenAI(ctx, req.Prompt, maxTokens)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *HTTPClient) generateOpenAI(ctx context.Context, prompt string, maxTokens int) (*Result, error) {
	body, err := json.Marshal(openAIRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	data, err := c.post(ctx, c.baseURL+"/v1/chat/completions", headers, body)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	var resp openAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai: empty completion")
	}

	usage := models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return &Result{
		Text:    resp.Choices[0].Message.Content,
		Model:   c.model,
		Usage:   usage,
		CostUSD: c.pricing.CostUSD(c.model, usage),
	}, nil
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *HTTPClient) generateAnthropic(ctx context.Context, prompt string, maxTokens int) (*Result, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	data, err := c.post(ctx, c.baseURL+"/v1/messages", headers, body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("anthropic: empty completion")
	}

	usage := models.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	return &Result{
		Text:    text,
		Model:   c.model,
		Usage:   usage,
		CostUSD: c.pricing.CostUSD(c.model, usage),
	}, nil
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *HTTPClient) generateOllama(ctx context.Context, prompt string) (*Result, error) {
	body, err := json.Marshal(ollamaRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}

	data, err := c.post(ctx, c.baseURL+"/api/generate", nil, body)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	var resp ollamaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if resp.Response == "" {
		return nil, fmt.Errorf("ollama: empty completion")
	}

	usage := models.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	return &Result{
		Text:    resp.Response,
		Model:   c.model,
		Usage:   usage,
		CostUSD: c.pricing.CostUSD(c.model, usage),
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 256))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
