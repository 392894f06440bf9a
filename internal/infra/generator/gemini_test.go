package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/resilience/retry"
)

func TestMapGeminiError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"googleapi 429", fmt.Errorf("rpc: %w", &googleapi.Error{Code: 429, Message: "quota"}), http.StatusTooManyRequests},
		{"googleapi 400", &googleapi.Error{Code: 400, Message: "API key not valid"}, http.StatusBadRequest},
		{"grpc unavailable", status.Error(codes.Unavailable, "try later"), http.StatusServiceUnavailable},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "no key"), http.StatusUnauthorized},
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "quota"), http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var httpErr *retry.HTTPError
			require.ErrorAs(t, mapGeminiError(tt.err), &httpErr)
			assert.Equal(t, tt.wantStatus, httpErr.StatusCode)
		})
	}
}

func TestMapGeminiError_Blocked(t *testing.T) {
	err := mapGeminiError(&genai.BlockedError{})

	assert.Equal(t, entity.KindBackendError, entity.KindOf(err))
	assert.False(t, entity.IsRetryable(err))
}

func TestMapGeminiError_Other(t *testing.T) {
	base := errors.New("connection reset")
	err := mapGeminiError(base)

	assert.ErrorIs(t, err, base)
	var httpErr *retry.HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestFirstText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"insight":`), genai.Text(`"x"}`)}},
		}},
	}
	assert.Equal(t, `{"insight":"x"}`, firstText(resp))
	assert.Equal(t, "", firstText(nil))
	assert.Equal(t, "", firstText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}

func TestGemini_MissingKey(t *testing.T) {
	g, err := NewGemini(context.Background(), "", "gemini-2.0-flash", Options{})
	require.NoError(t, err)

	assert.Error(t, g.Ping(context.Background()))
	_, err = g.Generate(context.Background(), testRequest())
	assert.False(t, entity.IsRetryable(err))
	assert.NoError(t, g.Close())
}
