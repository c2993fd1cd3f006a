package timefilter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

// Result is the date-bounded candidate set.
type Result struct {
	Candidates []domain.Article
	// HasArticles reports whether the window holds any article at all, independent of the topic.
	HasArticles bool
	Since       *time.Time
}

// Filter reduces the item store to articles published inside a time window.
type Filter struct {
	store ports.ItemStore
	now   func() time.Time
}

// New creates a filter over store.
func New(store ports.ItemStore) *Filter {
	return &Filter{store: store, now: time.Now}
}

// Since converts a day count into the lower bound; nil means unlimited.
func Since(now time.Time, days *int) *time.Time {
	if days == nil {
		return nil
	}
	since := now.Add(-time.Duration(*days) * 24 * time.Hour)
	return &since
}

// Apply returns the candidates newest first.
func (f *Filter) Apply(ctx context.Context, days *int, sourceIDs []string) (Result, error) {
	if days != nil && *days < 0 {
		return Result{}, fmt.Errorf("time filter: negative range %d", *days)
	}
	since := Since(f.now(), days)

	articles, err := f.store.QueryByDateRange(ctx, sourceIDs, since)
	if err != nil {
		return Result{}, fmt.Errorf("query by date range: %w", err)
	}

	candidates := make([]domain.Article, 0, len(articles))
	for _, article := range articles {
		if since != nil && article.PublishedAt.Before(*since) {
			continue
		}
		candidates = append(candidates, article)
	}
	SortNewestFirst(candidates)

	return Result{
		Candidates:  candidates,
		HasArticles: len(candidates) > 0,
		Since:       since,
	}, nil
}

// SortNewestFirst orders by publish date descending, then by id for stability.
func SortNewestFirst(articles []domain.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].PublishedAt.Equal(articles[j].PublishedAt) {
			return articles[i].PublishedAt.After(articles[j].PublishedAt)
		}
		return articles[i].ID < articles[j].ID
	})
}
