package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Config holds all gateway configuration. It is loaded once at startup and
// handed to components explicitly; nothing reads it from a global.
type Config struct {
	Listen      string             `yaml:"listen"`
	DBPath      string             `yaml:"db_path" validate:"required"`
	LogLevel    string             `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	Cache       CacheConfig        `yaml:"cache"`
	Budget      BudgetConfig       `yaml:"budget"`
	Breaker     BreakerConfig      `yaml:"breaker"`
	Upstream    UpstreamConfig     `yaml:"upstream"`
	Server      ServerConfig       `yaml:"server"`
	Audit       AuditConfig        `yaml:"audit"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Experiments []ExperimentConfig `yaml:"experiments" validate:"dive"`
	Tools       []ToolConfig       `yaml:"tools" validate:"dive"`
}

// CacheConfig controls the response cache. The sqlite backend persists
// entries in DBPath, which defaults to the main database file.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend" validate:"omitempty,oneof=memory sqlite redis"`
	TTL          time.Duration `yaml:"ttl" validate:"gt=0"`
	SingleFlight bool          `yaml:"single_flight"`
	DBPath       string        `yaml:"db_path"`
	Redis        RedisConfig   `yaml:"redis"`
}

// RedisConfig locates the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// BudgetConfig controls the spend ceiling. A limit of 0 disables it.
type BudgetConfig struct {
	Window   models.BudgetWindow `yaml:"window" validate:"omitempty,oneof=daily monthly"`
	LimitUSD float64             `yaml:"limit_usd" validate:"gte=0"`
}

// BreakerConfig controls the upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=1"`
	Cooldown         time.Duration `yaml:"cooldown" validate:"gt=0"`
}

// UpstreamConfig defines the guarded AI provider.
// Provider is "openai", "anthropic", or "ollama".
type UpstreamConfig struct {
	Provider  string          `yaml:"provider" validate:"omitempty,oneof=openai anthropic ollama"`
	URL       string          `yaml:"url" validate:"required"`
	APIKey    string          `yaml:"api_key"`
	Model     string          `yaml:"model" validate:"required"`
	Timeout   time.Duration   `yaml:"timeout" validate:"gt=0"`
	MaxTokens int             `yaml:"max_tokens" validate:"gte=0"`
	Pricing   []PricingConfig `yaml:"pricing" validate:"dive"`
}

// PricingConfig overrides the per-1K-token cost for one model.
type PricingConfig struct {
	Model           string  `yaml:"model" validate:"required"`
	PromptPer1K     float64 `yaml:"prompt_cost_per_1k" validate:"gte=0"`
	CompletionPer1K float64 `yaml:"completion_cost_per_1k" validate:"gte=0"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	SubjectHeader  string   `yaml:"subject_header"`
}

// AuditConfig controls the invocation audit log.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days" validate:"gte=0"`
	Include       []string `yaml:"include" validate:"dive,oneof=prompts payloads"`
	ExcludeTools  []string `yaml:"exclude_tools"`
	MaxBodySize   int      `yaml:"max_body_size" validate:"gte=0"`
}

// TelemetryConfig controls tracing export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// ExperimentConfig declares one A/B experiment.
type ExperimentConfig struct {
	Name     string           `yaml:"name" validate:"required"`
	Variants []models.Variant `yaml:"variants" validate:"min=1"`
}

// ToolConfig declares one tool the gateway serves. Prompt and Fallback are
// text/template bodies rendered with the request arguments; their syntax is
// checked at registration.
type ToolConfig struct {
	Name          string        `yaml:"name" validate:"required"`
	Description   string        `yaml:"description"`
	Prompt        string        `yaml:"prompt" validate:"required"`
	Response      string        `yaml:"response" validate:"omitempty,oneof=text json_object json_array"`
	Fallback      string        `yaml:"fallback" validate:"required"`
	EstimatedCost float64       `yaml:"estimated_cost" validate:"gte=0"`
	TTL           time.Duration `yaml:"ttl" validate:"gte=0"`
	MaxTokens     int           `yaml:"max_tokens" validate:"gte=0"`
	Experiment    string        `yaml:"experiment"`
}

var toolNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8085",
		DBPath:   "breakwater.db",
		LogLevel: "info",
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			TTL:     time.Hour,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Budget: BudgetConfig{
			Window:   models.BudgetDaily,
			LimitUSD: 5.0,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         60 * time.Second,
		},
		Upstream: UpstreamConfig{
			Provider:  "ollama",
			URL:       "http://localhost:11434",
			Model:     "llama3",
			Timeout:   30 * time.Second,
			MaxTokens: 512,
		},
		Server: ServerConfig{
			AllowedOrigins: []string{"*"},
			SubjectHeader:  "X-Subject-Id",
		},
		Audit: AuditConfig{
			RetentionDays: 30,
			MaxBodySize:   8192,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "breakwater",
		},
	}
}

// Load reads a YAML config file, expands environment variables, and
// validates the result. Configuration problems surface here, at startup,
// not on the first request that needs them.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Audit.DBPath == "" {
		c.Audit.DBPath = c.DBPath
	}
	if c.Cache.DBPath == "" {
		c.Cache.DBPath = c.DBPath
	}
	if c.Server.SubjectHeader == "" {
		c.Server.SubjectHeader = "X-Subject-Id"
	}
	for i := range c.Tools {
		if c.Tools[i].TTL <= 0 {
			c.Tools[i].TTL = c.Cache.TTL
		}
		if c.Tools[i].MaxTokens <= 0 {
			c.Tools[i].MaxTokens = c.Upstream.MaxTokens
		}
	}
}

// Validate checks field shapes and cross-references. Template syntax is
// checked later, when the gateway registers tools.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	experiments := make(map[string]bool, len(c.Experiments))
	for _, e := range c.Experiments {
		if experiments[e.Name] {
			return fmt.Errorf("validate config: experiment %q defined twice", e.Name)
		}
		experiments[e.Name] = true
	}

	tools := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if !toolNameRE.MatchString(t.Name) {
			return fmt.Errorf("validate config: tool name %q must match %s", t.Name, toolNameRE)
		}
		if tools[t.Name] {
			return fmt.Errorf("validate config: tool %q defined twice", t.Name)
		}
		tools[t.Name] = true
		if t.Experiment != "" && !experiments[t.Experiment] {
			return fmt.Errorf("validate config: tool %q references unknown experiment %q", t.Name, t.Experiment)
		}
	}
	return nil
}
