package config

import (
	"net/url"
	"strings"

	"ArticlesConsolidator/internal/domain"
)

var endpointSuffixes = []string{"/chat/completions", "/embeddings"}

// NormalizeEndpoint reduces a full OpenAI-style endpoint to the base URL the SDK expects.
// "https://host/v1/chat/completions" becomes "https://host/v1/".
func NormalizeEndpoint(field, raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", &domain.ConfigurationError{Field: field, Reason: "endpoint is empty"}
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return "", &domain.ConfigurationError{Field: field, Reason: "endpoint is not a valid URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", &domain.ConfigurationError{Field: field, Reason: "endpoint must start with http:// or https://"}
	}

	endpoint = strings.TrimRight(endpoint, "/")
	for _, suffix := range endpointSuffixes {
		endpoint = strings.TrimSuffix(endpoint, suffix)
	}
	return endpoint + "/", nil
}

// EmbeddingsEnabled reports whether the similarity stages can run.
func (q QueryConfig) EmbeddingsEnabled() bool {
	return q.Embedding.Configured()
}

// Validate checks the provider settings before a session starts.
func (q QueryConfig) Validate() error {
	if _, err := NormalizeEndpoint("chat.endpoint", q.Chat.Endpoint); err != nil {
		return err
	}
	if strings.TrimSpace(q.Chat.APIKey) == "" {
		return &domain.ConfigurationError{Field: "chat.apiKey", Reason: "API key is missing"}
	}
	if strings.TrimSpace(q.Chat.Model) == "" {
		return &domain.ConfigurationError{Field: "chat.model", Reason: "model is missing"}
	}
	if q.TopK <= 0 {
		return &domain.ConfigurationError{Field: "query.topk", Reason: "must be positive"}
	}

	if !q.EmbeddingsEnabled() {
		return nil
	}
	if _, err := NormalizeEndpoint("embedding.endpoint", q.Embedding.Endpoint); err != nil {
		return err
	}
	if strings.TrimSpace(q.Embedding.APIKey) == "" {
		return &domain.ConfigurationError{Field: "embedding.apiKey", Reason: "API key is missing"}
	}
	if strings.TrimSpace(q.Embedding.Model) == "" {
		return &domain.ConfigurationError{Field: "embedding.model", Reason: "model is missing"}
	}
	if q.Embedding.QPS <= 0 {
		return &domain.ConfigurationError{Field: "embedding.qps", Reason: "must be positive"}
	}
	return nil
}
