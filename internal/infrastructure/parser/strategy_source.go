package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/ports"
	"ArticlesConsolidator/internal/scanner"
)

// StrategySource implements ArticleSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	feeds    []config.FeedConfig
	logger   *slog.Logger
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined feeds.
func NewStrategySource(reg *scanner.Registry, feeds []config.FeedConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		feeds:    feeds,
		logger:   logging.Component(log, "feeds"),
	}
}

// Sources lists the configured feeds as domain sources.
func (s *StrategySource) Sources() []domain.Source {
	out := make([]domain.Source, len(s.feeds))
	for i, feed := range s.feeds {
		out[i] = domain.Source{ID: feed.ID, Name: feed.Name, FeedURL: feed.URL}
	}
	return out
}

// FetchLatest scans every configured feed. A failing feed is reported in the joined error
// while the articles of the other feeds are still returned.
func (s *StrategySource) FetchLatest(ctx context.Context) ([]domain.Article, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.logger.Debug("fetch latest", "feeds", len(s.feeds))

	var (
		aggregated []domain.Article
		errs       []error
	)
	for _, feed := range s.feeds {
		if err := ctx.Err(); err != nil {
			return aggregated, err
		}
		strategy, err := s.registry.Resolve(feed.Scanner)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}

		name := feed.Name
		if name == "" {
			name = feed.ID
		}
		results, err := strategy.Scan(ctx, scanner.Request{
			SourceID:   feed.ID,
			SourceName: name,
			URL:        feed.URL,
			Options:    feed.Options,
		})
		if err != nil {
			s.logger.Warn("scan feed failed", "feed", feed.ID, "error", err)
			errs = append(errs, fmt.Errorf("scan feed %s: %w", feed.ID, err))
			continue
		}

		for i := range results {
			if results[i].SourceID == "" {
				results[i].SourceID = feed.ID
			}
		}
		s.logger.Debug("feed produced articles", "feed", feed.ID, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.logger.Debug("strategy source done", "total_articles", len(aggregated))
	return aggregated, errors.Join(errs...)
}
