package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoArticlesInRange reports an empty candidate set, as opposed to a topic with no matches.
var ErrNoArticlesInRange = errors.New("no articles in the selected time range")

// ConfigurationError aborts a session before the pipeline starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// ProviderError wraps an embedding or chat network/HTTP/parse failure.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Message maps well-known provider status codes to a short explanation.
func (e *ProviderError) Message() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "invalid API key"
	case http.StatusNotFound:
		return "API endpoint not found, check the endpoint URL"
	case http.StatusTooManyRequests:
		return "rate limited by the provider, try again later"
	}
	if e.StatusCode >= http.StatusInternalServerError {
		return "provider is unavailable"
	}
	return e.Error()
}

// ValidationError reports a clustering response that is not a partition of its input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid clustering response: " + e.Reason
}

// ClusteringError is the single error surfaced when the cluster synthesizer fails.
type ClusteringError struct {
	Err error
}

func (e *ClusteringError) Error() string {
	return "clustering failed: " + e.Err.Error()
}

func (e *ClusteringError) Unwrap() error { return e.Err }

// HumanMessage renders err as one user-facing line.
func HumanMessage(err error) string {
	if err == nil {
		return ""
	}
	var provider *ProviderError
	if errors.As(err, &provider) {
		return provider.Message()
	}
	var cfg *ConfigurationError
	if errors.As(err, &cfg) {
		return fmt.Sprintf("please configure %s: %s", cfg.Field, cfg.Reason)
	}
	if errors.Is(err, ErrNoArticlesInRange) {
		return ErrNoArticlesInRange.Error()
	}
	return err.Error()
}
