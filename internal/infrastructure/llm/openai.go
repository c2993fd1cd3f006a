package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
)

// RequestOptions builds SDK options for an OpenAI-compatible endpoint.
// Retries stay with the caller so every outbound request is visible to its rate limiter.
func RequestOptions(field, endpoint, apiKey string, timeout time.Duration) ([]option.RequestOption, error) {
	baseURL, err := config.NormalizeEndpoint(field, endpoint)
	if err != nil {
		return nil, err
	}
	return []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}, nil
}

// WrapError converts SDK and transport failures into *domain.ProviderError.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{Op: op, StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Op: op, Err: fmt.Errorf("request timed out: %w", err)}
	}
	return &domain.ProviderError{Op: op, Err: err}
}
