package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/resilience/circuitbreaker"
)

// OpenAI generates insights with the Chat Completions API. Any server speaking
// that API can be used through baseURL.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	hasKey      bool
	guard       *guard
}

// NewOpenAI creates an OpenAI backend. baseURL may be empty.
func NewOpenAI(apiKey, model, baseURL string, opts Options) *OpenAI {
	opts = opts.withDefaults()
	if apiKey == "" {
		opts.Logger.Warn("OPENAI_API_KEY not set, openai backend disabled")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = opts.HTTPClient

	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   opts.MaxOutputTokens,
		temperature: float32(opts.Temperature),
		hasKey:      apiKey != "",
		guard:       newGuard("openai", circuitbreaker.OpenAIAPIConfig(), opts),
	}
}

// Name implements insight.Provider.
func (o *OpenAI) Name() string { return "openai" }

// Generate implements insight.Provider.
func (o *OpenAI) Generate(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	if !o.hasKey {
		return nil, errMissingKey("openai")
	}
	return o.guard.call(ctx, func(ctx context.Context) (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:               o.model,
			MaxCompletionTokens: o.maxTokens,
			Temperature:         o.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
				{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
			},
		})
		if err != nil {
			return "", mapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return "", errEmptyOutput
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// Ping implements insight.Provider by retrieving the configured model.
func (o *OpenAI) Ping(ctx context.Context) error {
	if !o.hasKey {
		return errMissingKey("openai")
	}
	if _, err := o.client.GetModel(ctx, o.model); err != nil {
		return fmt.Errorf("openai model %s: %w", o.model, mapOpenAIError(err))
	}
	return nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return fmt.Errorf("openai: %w", err)
}
