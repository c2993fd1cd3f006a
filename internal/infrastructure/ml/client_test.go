package ml

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
)

func TestEmbedOrdersVectorsByIndex(t *testing.T) {
	t.Parallel()

	var body struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list", "model": "embed-test",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 8, "total_tokens": 8}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.EmbeddingConfig{Endpoint: srv.URL + "/v1/embeddings", APIKey: "k", Model: "embed-test"}, 5*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if body.Model != "embed-test" || len(body.Input) != 2 || body.Input[1] != "second" {
		t.Fatalf("unexpected request body %+v", body)
	}
	if len(res.Vectors) != 2 || res.Vectors[0][0] != 1 || res.Vectors[1][1] != 1 {
		t.Fatalf("vectors not ordered by index: %v", res.Vectors)
	}
	if res.Usage.PromptTokens != 8 || res.Usage.TotalTokens != 8 {
		t.Fatalf("unexpected usage %+v", res.Usage)
	}
}

func TestEmbedReportsProviderStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.EmbeddingConfig{Endpoint: srv.URL + "/v1", APIKey: "k", Model: "m"}, 5*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Embed(context.Background(), []string{"x"})
	var provider *domain.ProviderError
	if !errors.As(err, &provider) || provider.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 provider error, got %v", err)
	}
	if provider.Message() != "invalid API key" {
		t.Fatalf("unexpected message %q", provider.Message())
	}
}

func TestEmbedRejectsShortResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "model": "m", "data": [], "usage": {"prompt_tokens": 1, "total_tokens": 1}}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.EmbeddingConfig{Endpoint: srv.URL + "/v1", APIKey: "k", Model: "m"}, 5*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected error for missing vectors")
	}
}

func TestEmbedRejectsRepeatedIndex(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"repeated":     `[{"object":"embedding","index":0,"embedding":[1]},{"object":"embedding","index":0,"embedding":[2]}]`,
		"out of range": `[{"object":"embedding","index":0,"embedding":[1]},{"object":"embedding","index":5,"embedding":[2]}]`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"object": "list", "model": "m", "data": ` + data + `, "usage": {"prompt_tokens": 2, "total_tokens": 2}}`))
			}))
			defer srv.Close()

			client, err := NewClient(config.EmbeddingConfig{Endpoint: srv.URL + "/v1", APIKey: "k", Model: "m"}, 5*time.Second)
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			_, err = client.Embed(context.Background(), []string{"a", "b"})
			var provider *domain.ProviderError
			if !errors.As(err, &provider) {
				t.Fatalf("expected provider error, got %v", err)
			}
		})
	}
}
