// Package clustering asks a chat model to partition articles into labeled groups.
package clustering

import (
	"context"
	"log/slog"
	"time"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/ports"
)

const (
	temperature = 0.3
	maxTokens   = 4000
)

// UsageRecorder receives the token usage of the clustering call.
type UsageRecorder interface {
	AddRecord(ctx context.Context, model string, apiType domain.APIType, callContext string, usage domain.Usage) domain.TokenUsageRecord
}

// Synthesizer issues one chat-completion call per clustering request.
type Synthesizer struct {
	chat     ports.ChatClient
	recorder UsageRecorder
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a synthesizer; recorder may be nil.
func New(chat ports.ChatClient, recorder UsageRecorder, timeout time.Duration, logger *slog.Logger) *Synthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synthesizer{chat: chat, recorder: recorder, timeout: timeout, logger: logging.Component(logger, "clustering")}
}

// Cluster partitions articles. Every failure is returned as a *domain.ClusteringError.
func (s *Synthesizer) Cluster(ctx context.Context, articles []domain.Article, topic, standard string) ([]domain.ArticleCluster, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.chat.Complete(callCtx, ports.ChatRequest{
		System:      systemMessage,
		User:        buildPrompt(articles, topic, standard),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, &domain.ClusteringError{Err: err}
	}
	if s.recorder != nil {
		model := resp.Model
		if model == "" {
			model = s.chat.Model()
		}
		s.recorder.AddRecord(ctx, model, domain.APITypeChat, domain.CallContextClustering, resp.Usage)
	}

	parsed, err := decodeResponse(resp.Content)
	if err != nil {
		s.logger.Warn("malformed clustering response", "error", err)
		return nil, &domain.ClusteringError{Err: &domain.ValidationError{Reason: err.Error()}}
	}
	clusters, err := buildClusters(articles, parsed)
	if err != nil {
		s.logger.Warn("rejected clustering response", "error", err)
		return nil, &domain.ClusteringError{Err: err}
	}

	s.logger.Debug("clustered articles", "articles", len(articles), "clusters", len(clusters))
	return clusters, nil
}
