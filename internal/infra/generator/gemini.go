package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/resilience/circuitbreaker"
)

// Gemini generates insights with Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	guard  *guard
}

// NewGemini creates a Gemini backend. Without an API key the backend is created
// but reports itself unavailable.
func NewGemini(ctx context.Context, apiKey, model string, opts Options) (*Gemini, error) {
	opts = opts.withDefaults()
	g := &Gemini{
		name:  model,
		guard: newGuard("gemini", circuitbreaker.GeminiAPIConfig(), opts),
	}
	if apiKey == "" {
		opts.Logger.Warn("GEMINI_API_KEY not set, gemini backend disabled")
		return g, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(float32(opts.Temperature))
	m.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}

	g.client = client
	g.model = m
	return g, nil
}

// Name implements insight.Provider.
func (g *Gemini) Name() string { return "gemini" }

// Generate implements insight.Provider.
func (g *Gemini) Generate(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	if g.model == nil {
		return nil, errMissingKey("gemini")
	}
	return g.guard.call(ctx, func(ctx context.Context) (string, error) {
		resp, err := g.model.GenerateContent(ctx, genai.Text(BuildPrompt(req)))
		if err != nil {
			return "", mapGeminiError(err)
		}
		return firstText(resp), nil
	})
}

// Ping implements insight.Provider by fetching the model's metadata.
func (g *Gemini) Ping(ctx context.Context) error {
	if g.model == nil {
		return errMissingKey("gemini")
	}
	if _, err := g.model.Info(ctx); err != nil {
		return fmt.Errorf("gemini model %s: %w", g.name, mapGeminiError(err))
	}
	return nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// mapGeminiError converts client errors to status errors so the retry policy
// can classify them. Blocked content is never retried.
func mapGeminiError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return entity.NewBackendError(fmt.Errorf("gemini: %w", err), false)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, apiErr.Message)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return statusError("gemini", httpStatusFromCode(st.Code()), st.Message())
	}
	return fmt.Errorf("gemini: %w", err)
}

func httpStatusFromCode(c codes.Code) int {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
