package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/ports"
)

// ErrIngestLocked is returned when another process holds the ingest lock.
var ErrIngestLocked = errors.New("another ingest is already running")

// IngestReport summarizes one refresh.
type IngestReport struct {
	Fetched int
	New     int
	// FeedErrors joins the failures of individual feeds; the rest were still stored.
	FeedErrors error
}

// Ingestor pulls configured feeds into the local item store.
type Ingestor struct {
	source   ports.ArticleSource
	repo     ports.ArticleRepository
	lockPath string
	logger   *slog.Logger
}

// NewIngestor builds an ingestor. An empty lockPath disables cross-process locking.
func NewIngestor(source ports.ArticleSource, repo ports.ArticleRepository, lockPath string, logger *slog.Logger) *Ingestor {
	return &Ingestor{source: source, repo: repo, lockPath: lockPath, logger: logging.Component(logger, "ingest")}
}

// Run fetches every feed once and upserts the articles. New articles carry no embedding.
func (i *Ingestor) Run(ctx context.Context) (IngestReport, error) {
	var report IngestReport
	if i.source == nil || i.repo == nil {
		return report, nil
	}

	if i.lockPath != "" {
		lock := flock.New(i.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return report, fmt.Errorf("acquire ingest lock: %w", err)
		}
		if !ok {
			return report, ErrIngestLocked
		}
		defer func() { _ = lock.Unlock() }()
	}

	articles, fetchErr := i.source.FetchLatest(ctx)
	report.Fetched = len(articles)
	report.FeedErrors = fetchErr
	if len(articles) == 0 {
		if fetchErr != nil {
			return report, fmt.Errorf("fetch latest: %w", fetchErr)
		}
		i.logger.Info("no articles fetched")
		return report, nil
	}

	added, err := i.repo.UpsertArticles(ctx, articles)
	if err != nil {
		return report, fmt.Errorf("upsert articles: %w", err)
	}
	report.New = added

	if fetchErr != nil {
		i.logger.Warn("some feeds failed", "error", fetchErr)
	}
	i.logger.Info("ingest finished", "fetched", report.Fetched, "new", report.New)
	return report, nil
}
