// Package config loads the insight gateway configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	pkgconfig "langcard-insight/pkg/config"
)

// Supported values of AI_BACKEND.
const (
	BackendGemini = "gemini"
	BackendClaude = "claude"
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
	// BackendNone runs without a primary backend; every request gets the fallback response.
	BackendNone = "none"
)

// AIConfig holds configuration for the insight service and its backends.
//
// Values are resolved in three layers: built-in defaults, then the optional
// YAML file named by AI_CONFIG_FILE, then environment variables. API keys are
// read from the environment only.
type AIConfig struct {
	// Backend selects the primary backend. Default: "gemini"
	Backend string `yaml:"backend"`

	Gemini GeminiConfig `yaml:"gemini"`
	Claude ClaudeConfig `yaml:"claude"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Ollama OllamaConfig `yaml:"ollama"`

	Generation GenerationConfig `yaml:"generation"`

	// Retry configures the service's primary-path attempts.
	Retry RetryConfig `yaml:"retry"`

	// AutoRetry configures the session-level re-issue of failed requests.
	AutoRetry AutoRetryConfig `yaml:"auto_retry"`

	// RateLimit bounds outgoing backend calls.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Context ContextConfig `yaml:"context"`

	// StreamTTL is how long an idle client stream keeps its session. Default: 10m
	StreamTTL time.Duration `yaml:"stream_ttl"`

	// AvailabilityRefresh is a cron schedule for re-probing the backend.
	// Empty disables the schedule. Default: "@every 5m"
	AvailabilityRefresh string `yaml:"availability_refresh"`
}

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string `yaml:"-"`
	// Model default: "gemini-2.0-flash"
	Model string `yaml:"model"`
}

// ClaudeConfig configures the Anthropic Claude backend.
type ClaudeConfig struct {
	APIKey string `yaml:"-"`
	// Model default: "claude-haiku-4-5"
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey string `yaml:"-"`
	// Model default: "gpt-4o-mini"
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig configures a local Ollama server.
type OllamaConfig struct {
	// Host is the server URL. Empty uses OLLAMA_HOST or the Ollama default.
	Host string `yaml:"host"`
	// Model default: "llama3.2"
	Model string `yaml:"model"`
}

// GenerationConfig holds sampling settings shared by every backend.
type GenerationConfig struct {
	// MaxOutputTokens default: 1024
	MaxOutputTokens int `yaml:"max_output_tokens"`
	// Temperature default: 0.2
	Temperature float64 `yaml:"temperature"`
}

// RetryConfig holds the service configuration.
type RetryConfig struct {
	// MaxRetries default: 3
	MaxRetries int `yaml:"max_retries"`
	// Timeout bounds each attempt. Default: 10s
	Timeout time.Duration `yaml:"timeout"`
	// Delay is the linear backoff unit. Default: 1s
	Delay time.Duration `yaml:"delay"`
}

// AutoRetryConfig holds the session auto-retry policy.
type AutoRetryConfig struct {
	// Enabled default: true
	Enabled bool `yaml:"enabled"`
	// Delay default: 2s
	Delay time.Duration `yaml:"delay"`
	// MaxRetries default: 2
	MaxRetries int `yaml:"max_retries"`
}

// RateLimitConfig bounds the rate of backend calls.
type RateLimitConfig struct {
	// RPS is the sustained rate; zero or negative disables limiting. Default: 2
	RPS float64 `yaml:"rps"`
	// Burst default: 4
	Burst int `yaml:"burst"`
}

// ContextConfig holds the context extractor limits.
type ContextConfig struct {
	// MaxFieldChars default: 500
	MaxFieldChars int `yaml:"max_field_chars"`
	// MaxTotalChars default: 2000
	MaxTotalChars int `yaml:"max_total_chars"`
}

// DefaultAIConfig returns the built-in defaults.
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		Backend: BackendGemini,
		Gemini:  GeminiConfig{Model: "gemini-2.0-flash"},
		Claude:  ClaudeConfig{Model: "claude-haiku-4-5"},
		OpenAI:  OpenAIConfig{Model: "gpt-4o-mini"},
		Ollama:  OllamaConfig{Model: "llama3.2"},
		Generation: GenerationConfig{
			MaxOutputTokens: 1024,
			Temperature:     0.2,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Timeout:    10 * time.Second,
			Delay:      1 * time.Second,
		},
		AutoRetry: AutoRetryConfig{
			Enabled:    true,
			Delay:      2 * time.Second,
			MaxRetries: 2,
		},
		RateLimit: RateLimitConfig{
			RPS:   2,
			Burst: 4,
		},
		Context: ContextConfig{
			MaxFieldChars: 500,
			MaxTotalChars: 2000,
		},
		StreamTTL:           10 * time.Minute,
		AvailabilityRefresh: "@every 5m",
	}
}

// LoadAIConfig loads configuration from AI_CONFIG_FILE (if set) and the environment.
func LoadAIConfig() (*AIConfig, error) {
	config := DefaultAIConfig()

	if path := os.Getenv("AI_CONFIG_FILE"); path != "" {
		if err := config.overlayFile(path); err != nil {
			return nil, err
		}
	}
	config.overlayEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	return config, nil
}

// overlayFile applies the keys present in a YAML file on top of c.
// The path is expected to come from a trusted source (the operator's environment).
func (c *AIConfig) overlayFile(path string) error {
	// #nosec G304 -- path is provided by the operator, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AIConfig) overlayEnv() {
	c.Backend = strings.ToLower(pkgconfig.GetEnvString("AI_BACKEND", c.Backend))

	c.Gemini.APIKey = pkgconfig.GetEnvString("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.Model = pkgconfig.GetEnvString("GEMINI_MODEL", c.Gemini.Model)
	c.Claude.APIKey = pkgconfig.GetEnvString("ANTHROPIC_API_KEY", c.Claude.APIKey)
	c.Claude.Model = pkgconfig.GetEnvString("CLAUDE_MODEL", c.Claude.Model)
	c.Claude.BaseURL = pkgconfig.GetEnvString("ANTHROPIC_BASE_URL", c.Claude.BaseURL)
	c.OpenAI.APIKey = pkgconfig.GetEnvString("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.Model = pkgconfig.GetEnvString("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.BaseURL = pkgconfig.GetEnvString("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.Ollama.Host = pkgconfig.GetEnvString("OLLAMA_HOST", c.Ollama.Host)
	c.Ollama.Model = pkgconfig.GetEnvString("OLLAMA_MODEL", c.Ollama.Model)

	c.Generation.MaxOutputTokens = pkgconfig.GetEnvInt("AI_MAX_OUTPUT_TOKENS", c.Generation.MaxOutputTokens)
	c.Generation.Temperature = pkgconfig.GetEnvFloat("AI_TEMPERATURE", c.Generation.Temperature)

	c.Retry.MaxRetries = pkgconfig.GetEnvInt("AI_MAX_RETRIES", c.Retry.MaxRetries)
	c.Retry.Timeout = pkgconfig.GetEnvDuration("AI_TIMEOUT", c.Retry.Timeout)
	c.Retry.Delay = pkgconfig.GetEnvDuration("AI_RETRY_DELAY", c.Retry.Delay)

	c.AutoRetry.Enabled = pkgconfig.GetEnvBool("AI_AUTO_RETRY", c.AutoRetry.Enabled)
	c.AutoRetry.Delay = pkgconfig.GetEnvDuration("AI_AUTO_RETRY_DELAY", c.AutoRetry.Delay)
	c.AutoRetry.MaxRetries = pkgconfig.GetEnvInt("AI_MAX_AUTO_RETRIES", c.AutoRetry.MaxRetries)

	c.RateLimit.RPS = pkgconfig.GetEnvFloat("AI_RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = pkgconfig.GetEnvInt("AI_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Context.MaxFieldChars = pkgconfig.GetEnvInt("AI_CONTEXT_MAX_FIELD_CHARS", c.Context.MaxFieldChars)
	c.Context.MaxTotalChars = pkgconfig.GetEnvInt("AI_CONTEXT_MAX_TOTAL_CHARS", c.Context.MaxTotalChars)

	c.StreamTTL = pkgconfig.GetEnvDuration("AI_STREAM_TTL", c.StreamTTL)
	if v, ok := os.LookupEnv("AI_AVAILABILITY_REFRESH"); ok {
		c.AvailabilityRefresh = strings.TrimSpace(v)
	}
}

// Validate checks configuration correctness.
func (c *AIConfig) Validate() error {
	switch c.Backend {
	case BackendGemini, BackendClaude, BackendOpenAI, BackendOllama, BackendNone:
	default:
		return fmt.Errorf("AI_BACKEND must be one of gemini, claude, openai, ollama, none; got %q", c.Backend)
	}

	if c.Retry.MaxRetries < 1 || c.Retry.MaxRetries > 10 {
		return fmt.Errorf("AI_MAX_RETRIES must be between 1 and 10")
	}
	if err := pkgconfig.ValidatePositiveDuration(c.Retry.Timeout); err != nil {
		return fmt.Errorf("AI_TIMEOUT: %w", err)
	}
	if err := pkgconfig.ValidateNonNegativeDuration(c.Retry.Delay); err != nil {
		return fmt.Errorf("AI_RETRY_DELAY: %w", err)
	}

	if c.AutoRetry.MaxRetries < 0 || c.AutoRetry.MaxRetries > 10 {
		return fmt.Errorf("AI_MAX_AUTO_RETRIES must be between 0 and 10")
	}
	if err := pkgconfig.ValidateNonNegativeDuration(c.AutoRetry.Delay); err != nil {
		return fmt.Errorf("AI_AUTO_RETRY_DELAY: %w", err)
	}

	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("AI_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	if c.Generation.MaxOutputTokens <= 0 {
		return fmt.Errorf("AI_MAX_OUTPUT_TOKENS must be positive")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("AI_TEMPERATURE must be between 0.0 and 2.0")
	}

	if c.Context.MaxFieldChars <= 0 || c.Context.MaxTotalChars < c.Context.MaxFieldChars {
		return fmt.Errorf("context limits must satisfy 0 < AI_CONTEXT_MAX_FIELD_CHARS <= AI_CONTEXT_MAX_TOTAL_CHARS")
	}

	if err := pkgconfig.ValidatePositiveDuration(c.StreamTTL); err != nil {
		return fmt.Errorf("AI_STREAM_TTL: %w", err)
	}

	if c.AvailabilityRefresh != "" {
		if _, err := cron.ParseStandard(c.AvailabilityRefresh); err != nil {
			return fmt.Errorf("AI_AVAILABILITY_REFRESH is not a valid schedule: %w", err)
		}
	}
	return nil
}

// TotalAttemptBudget is the largest number of backend attempts one logical
// session request can cause: every auto-retry runs a full attempt loop.
func (c *AIConfig) TotalAttemptBudget() int {
	autoRetries := 0
	if c.AutoRetry.Enabled {
		autoRetries = c.AutoRetry.MaxRetries
	}
	return c.Retry.MaxRetries * (1 + autoRetries)
}
