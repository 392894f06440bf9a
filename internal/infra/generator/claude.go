package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/resilience/circuitbreaker"
)

// Claude generates insights with Anthropic's Messages API.
type Claude struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	hasKey      bool
	guard       *guard
}

// NewClaude creates a Claude backend. baseURL may be empty.
// SDK-level retries are disabled; the insight service owns the retry policy.
func NewClaude(apiKey, model, baseURL string, opts Options) *Claude {
	opts = opts.withDefaults()
	if apiKey == "" {
		opts.Logger.Warn("ANTHROPIC_API_KEY not set, claude backend disabled")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(opts.HTTPClient),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	return &Claude{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		maxTokens:   int64(opts.MaxOutputTokens),
		temperature: opts.Temperature,
		hasKey:      apiKey != "",
		guard:       newGuard("claude", circuitbreaker.ClaudeAPIConfig(), opts),
	}
}

// Name implements insight.Provider.
func (c *Claude) Name() string { return "claude" }

// Generate implements insight.Provider.
func (c *Claude) Generate(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	if !c.hasKey {
		return nil, errMissingKey("claude")
	}
	return c.guard.call(ctx, func(ctx context.Context) (string, error) {
		msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(c.model),
			MaxTokens:   c.maxTokens,
			Temperature: anthropic.Float(c.temperature),
			System:      []anthropic.TextBlockParam{{Text: systemInstruction}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
			},
		})
		if err != nil {
			return "", mapClaudeError(err)
		}

		var b strings.Builder
		for _, block := range msg.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				b.WriteString(tb.Text)
			}
		}
		return b.String(), nil
	})
}

// Ping implements insight.Provider by retrieving the configured model.
func (c *Claude) Ping(ctx context.Context) error {
	if !c.hasKey {
		return errMissingKey("claude")
	}
	if _, err := c.client.Models.Get(ctx, c.model, anthropic.ModelGetParams{}); err != nil {
		return fmt.Errorf("claude model %s: %w", c.model, mapClaudeError(err))
	}
	return nil
}

func mapClaudeError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return statusError("claude", apiErr.StatusCode, apiErr.Error())
	}
	return fmt.Errorf("claude: %w", err)
}
