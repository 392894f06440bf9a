package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/resilience/circuitbreaker"
)

// Ollama generates insights with a local Ollama server.
type Ollama struct {
	client  *api.Client
	model   string
	options map[string]any
	guard   *guard
}

// NewOllama creates an Ollama backend. An empty host falls back to OLLAMA_HOST
// and then to the Ollama default.
func NewOllama(host, model string, opts Options) (*Ollama, error) {
	opts = opts.withDefaults()

	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}

	return &Ollama{
		client: api.NewClient(hostURL, opts.HTTPClient),
		model:  model,
		options: map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxOutputTokens,
		},
		guard: newGuard("ollama", circuitbreaker.OllamaConfig(), opts),
	}, nil
}

// Name implements insight.Provider.
func (o *Ollama) Name() string { return "ollama" }

// Generate implements insight.Provider.
func (o *Ollama) Generate(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	return o.guard.call(ctx, func(ctx context.Context) (string, error) {
		stream := false
		genReq := &api.GenerateRequest{
			Model:   o.model,
			System:  systemInstruction,
			Prompt:  BuildPrompt(req),
			Format:  json.RawMessage(`"json"`),
			Stream:  &stream,
			Options: o.options,
		}

		var b strings.Builder
		err := o.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
			b.WriteString(resp.Response)
			return nil
		})
		if err != nil {
			return "", mapOllamaError(err)
		}
		return b.String(), nil
	})
}

// Ping implements insight.Provider. It checks that the server is up and that
// the model has been pulled.
func (o *Ollama) Ping(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", mapOllamaError(err))
	}
	if _, err := o.client.Show(ctx, &api.ShowRequest{Model: o.model}); err != nil {
		return fmt.Errorf("ollama model %s: %w", o.model, mapOllamaError(err))
	}
	return nil
}

func mapOllamaError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		msg := se.ErrorMessage
		if msg == "" {
			msg = se.Status
		}
		return statusError("ollama", se.StatusCode, msg)
	}
	return fmt.Errorf("ollama: %w", err)
}
