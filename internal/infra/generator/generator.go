// Package generator implements the insight backends: Gemini, Claude, OpenAI and
// a local Ollama server. Every backend performs exactly one attempt per call
// behind a rate limiter and a circuit breaker; retries belong to the insight service.
package generator

import (
	"context"
	"fmt"
	"log/slog"

	"langcard-insight/internal/config"
	"langcard-insight/internal/usecase/insight"
)

// Compile-time interface checks.
var (
	_ insight.Provider = (*Gemini)(nil)
	_ insight.Provider = (*Claude)(nil)
	_ insight.Provider = (*OpenAI)(nil)
	_ insight.Provider = (*Ollama)(nil)
)

// New builds the backend selected by cfg.Backend. It returns a nil Provider for
// config.BackendNone. Providers holding resources implement io.Closer.
func New(ctx context.Context, cfg *config.AIConfig, metrics GenerationMetrics, logger *slog.Logger) (insight.Provider, error) {
	opts := Options{
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		Temperature:     cfg.Generation.Temperature,
		RPS:             cfg.RateLimit.RPS,
		Burst:           cfg.RateLimit.Burst,
		Metrics:         metrics,
		Logger:          logger,
	}

	switch cfg.Backend {
	case config.BackendGemini:
		g, err := NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, opts)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.BackendClaude:
		return NewClaude(cfg.Claude.APIKey, cfg.Claude.Model, cfg.Claude.BaseURL, opts), nil
	case config.BackendOpenAI:
		return NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, opts), nil
	case config.BackendOllama:
		o, err := NewOllama(cfg.Ollama.Host, cfg.Ollama.Model, opts)
		if err != nil {
			return nil, err
		}
		return o, nil
	case config.BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown AI backend %q", cfg.Backend)
	}
}
