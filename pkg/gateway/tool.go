package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/config"
)

// tmplFuncs is available to prompt and fallback templates. join flattens a
// JSON array argument into prose, the shape model prompts want lists in.
var tmplFuncs = template.FuncMap{
	"join": func(items []any, sep string) string {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, fmt.Sprint(it))
		}
		return strings.Join(parts, sep)
	},
}

// Tool is one registered handler: a prompt template, a fallback template,
// and the admission parameters for the invoke pipeline. Tools are validated
// at registration, so a *Tool in hand is always invocable.
type Tool struct {
	name          string
	description   string
	response      string
	prompt        *template.Template
	fallback      *template.Template
	fallbackSrc   string
	estimatedCost float64
	ttl           time.Duration
	maxTokens     int
	experiment    string
}

func newTool(cfg config.ToolConfig) (*Tool, error) {
	prompt, err := template.New(cfg.Name + ":prompt").Funcs(tmplFuncs).Parse(cfg.Prompt)
	if err != nil {
		return nil, fmt.Errorf("tool %q: parse prompt: %w", cfg.Name, err)
	}
	fallback, err := template.New(cfg.Name + ":fallback").Funcs(tmplFuncs).Parse(cfg.Fallback)
	if err != nil {
		return nil, fmt.Errorf("tool %q: parse fallback: %w", cfg.Name, err)
	}

	response := cfg.Response
	if response == "" {
		response = "text"
	}

	return &Tool{
		name:          cfg.Name,
		description:   cfg.Description,
		response:      response,
		prompt:        prompt,
		fallback:      fallback,
		fallbackSrc:   cfg.Fallback,
		estimatedCost: cfg.EstimatedCost,
		ttl:           cfg.TTL,
		maxTokens:     cfg.MaxTokens,
		experiment:    cfg.Experiment,
	}, nil
}

// Name returns the tool's registered name.
func (t *Tool) Name() string { return t.name }

// Description returns the tool's human-readable description.
func (t *Tool) Description() string { return t.description }

// Experiment returns the experiment this tool participates in, if any.
func (t *Tool) Experiment() string { return t.experiment }

func (t *Tool) renderPrompt(args map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.prompt.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("tool %q: render prompt: %w", t.name, err)
	}
	return buf.String(), nil
}

// renderFallback produces the deterministic substitute payload. It cannot
// fail: a template execution error degrades to the raw template source, and
// non-JSON output is wrapped as a JSON string.
func (t *Tool) renderFallback(args map[string]any) json.RawMessage {
	var buf bytes.Buffer
	if err := t.fallback.Execute(&buf, args); err != nil {
		return mustJSONString(t.fallbackSrc)
	}
	rendered := strings.TrimSpace(buf.String())
	if json.Valid([]byte(rendered)) {
		return json.RawMessage(rendered)
	}
	return mustJSONString(rendered)
}

func mustJSONString(s string) json.RawMessage {
	raw, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return raw
}

// shapePayload converts raw model text into the tool's response shape.
// Models often wrap JSON in prose or markdown fences, so the object and
// array modes slice from the first opening to the last closing bracket
// before parsing.
func shapePayload(mode, text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	switch mode {
	case "json_object":
		return extractJSON(text, '{', '}')
	case "json_array":
		return extractJSON(text, '[', ']')
	default:
		return mustJSONString(text), nil
	}
}

func extractJSON(text string, open, close byte) (json.RawMessage, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no %c...%c block in response", open, close)
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("extracted %c...%c block is not valid JSON", open, close)
	}
	return json.RawMessage(candidate), nil
}
