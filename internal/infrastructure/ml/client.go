package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/infrastructure/llm"
	"ArticlesConsolidator/internal/ports"
)

// Client talks to an OpenAI-compatible embedding endpoint.
type Client struct {
	client openai.Client
	model  string
}

var _ ports.EmbeddingClient = (*Client)(nil)

// NewClient creates a reusable embedding client.
func NewClient(cfg config.EmbeddingConfig, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigurationError{Field: "embedding.apiKey", Reason: "API key is missing"}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &domain.ConfigurationError{Field: "embedding.model", Reason: "model is missing"}
	}
	opts, err := llm.RequestOptions("embedding.endpoint", cfg.Endpoint, cfg.APIKey, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Model returns the configured embedding model.
func (c *Client) Model() string {
	return c.model
}

// Embed requests one vector per input, returned in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) (ports.EmbeddingResult, error) {
	if len(inputs) == 0 {
		return ports.EmbeddingResult{Model: c.model}, nil
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(c.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return ports.EmbeddingResult{}, llm.WrapError("embeddings", err)
	}
	if len(resp.Data) != len(inputs) {
		return ports.EmbeddingResult{}, llm.WrapError("embeddings", fmt.Errorf("expected %d vectors, got %d", len(inputs), len(resp.Data)))
	}

	vectors := make([][]float64, len(inputs))
	for i, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
			return ports.EmbeddingResult{}, llm.WrapError("embeddings", fmt.Errorf("item %d has invalid or repeated index %d", i, idx))
		}
		vectors[idx] = item.Embedding
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return ports.EmbeddingResult{
		Model:   model,
		Vectors: vectors,
		Usage: domain.Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
