package timefilter

import (
	"context"
	"errors"
	"testing"
	"time"

	"ArticlesConsolidator/internal/domain"
)

type stubStore struct {
	articles  []domain.Article
	err       error
	gotSince  *time.Time
	gotSource []string
}

func (s *stubStore) QueryByDateRange(_ context.Context, sourceIDs []string, since *time.Time) ([]domain.Article, error) {
	s.gotSince = since
	s.gotSource = sourceIDs
	return s.articles, s.err
}

func (s *stubStore) LoadEmbeddings(context.Context, []string) (map[string]domain.StoredEmbedding, error) {
	return nil, nil
}

func (s *stubStore) PersistEmbedding(context.Context, string, []float64, string) error {
	return nil
}

func TestApplyFiltersAndSorts(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)
	store := &stubStore{articles: []domain.Article{
		{ID: "old", PublishedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "b", PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "a", PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "newest", PublishedAt: now.Add(-time.Minute)},
	}}
	f := New(store)
	f.now = func() time.Time { return now }

	days := 7
	res, err := f.Apply(context.Background(), &days, []string{"feed-1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.HasArticles {
		t.Fatalf("expected articles in range")
	}
	want := []string{"newest", "a", "b"}
	if len(res.Candidates) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(res.Candidates))
	}
	for i, id := range want {
		if res.Candidates[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, res.Candidates[i].ID)
		}
	}
	if store.gotSince == nil || !store.gotSince.Equal(now.Add(-7*24*time.Hour)) {
		t.Fatalf("unexpected since: %v", store.gotSince)
	}
	if len(store.gotSource) != 1 || store.gotSource[0] != "feed-1" {
		t.Fatalf("source ids not forwarded: %v", store.gotSource)
	}
}

func TestApplyUnlimitedWindow(t *testing.T) {
	t.Parallel()

	store := &stubStore{articles: []domain.Article{{ID: "ancient", PublishedAt: time.Unix(0, 0)}}}
	res, err := New(store).Apply(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if store.gotSince != nil {
		t.Fatalf("expected no lower bound")
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected the ancient article to be kept")
	}
}

func TestApplyEmptyWindow(t *testing.T) {
	t.Parallel()

	days := 1
	res, err := New(&stubStore{}).Apply(context.Background(), &days, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.HasArticles || len(res.Candidates) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestApplyWrapsStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("database is locked")
	_, err := New(&stubStore{err: boom}).Apply(context.Background(), nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
