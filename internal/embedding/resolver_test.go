package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

type fakeClient struct {
	mu    sync.Mutex
	calls []time.Time
	// failures counts remaining failures per input prefix (article title).
	failures map[string]int
}

func (f *fakeClient) Model() string { return "test-embed" }

func (f *fakeClient) Embed(_ context.Context, inputs []string) (ports.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, time.Now())

	vectors := make([][]float64, len(inputs))
	for i, input := range inputs {
		title := strings.SplitN(input, "\n", 2)[0]
		if n := f.failures[title]; n != 0 {
			if n > 0 {
				f.failures[title] = n - 1
			}
			return ports.EmbeddingResult{}, &domain.ProviderError{Op: "embed", StatusCode: 500, Err: errors.New("boom")}
		}
		vectors[i] = []float64{float64(len(input)), 1}
	}
	return ports.EmbeddingResult{Model: f.Model(), Vectors: vectors, Usage: domain.Usage{PromptTokens: int64(len(inputs)), TotalTokens: int64(len(inputs))}}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memoryStore struct {
	mu      sync.Mutex
	vectors map[string]domain.StoredEmbedding
	writes  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{vectors: make(map[string]domain.StoredEmbedding)}
}

func (m *memoryStore) QueryByDateRange(context.Context, []string, *time.Time) ([]domain.Article, error) {
	return nil, nil
}

func (m *memoryStore) LoadEmbeddings(_ context.Context, ids []string) (map[string]domain.StoredEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.StoredEmbedding)
	for _, id := range ids {
		if v, ok := m.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *memoryStore) PersistEmbedding(_ context.Context, id string, vector []float64, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.vectors[id] = domain.StoredEmbedding{ArticleID: id, Vector: vector, Digest: digest}
	return nil
}

type memoryTopics struct {
	mu      sync.Mutex
	vectors map[string][]float64
}

func (m *memoryTopics) LoadTopicEmbedding(_ context.Context, model, topic string) ([]float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vectors[model+"/"+topic]
	return v, ok, nil
}

func (m *memoryTopics) SaveTopicEmbedding(_ context.Context, model, topic string, vector []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[model+"/"+topic] = vector
	return nil
}

type usageCounter struct {
	mu      sync.Mutex
	byCtx   map[string]int
	records int
}

func (u *usageCounter) AddRecord(_ context.Context, model string, apiType domain.APIType, callContext string, usage domain.Usage) domain.TokenUsageRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.byCtx == nil {
		u.byCtx = make(map[string]int)
	}
	u.byCtx[callContext]++
	u.records++
	return domain.TokenUsageRecord{Model: model, APIType: apiType, CallContext: callContext}
}

func makeArticles(n int) []domain.Article {
	articles := make([]domain.Article, n)
	for i := range articles {
		articles[i] = domain.Article{
			ID:          fmt.Sprintf("a-%02d", i),
			Title:       fmt.Sprintf("title %d", i),
			Snippet:     "snippet",
			PublishedAt: time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC),
		}
	}
	return articles
}

func TestResolverUsesCacheAndPersists(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	store := newMemoryStore()
	usage := &usageCounter{}
	articles := makeArticles(6)

	r := NewResolver(client, store, nil, usage, Options{QPS: 100, Backoff: -1}, nil)
	ctx := context.Background()

	// two articles already cached with a matching digest, one with a stale digest
	for _, a := range articles[:2] {
		_ = store.PersistEmbedding(ctx, a.ID, []float64{1, 2}, Digest(client.Model(), Text(a)))
	}
	_ = store.PersistEmbedding(ctx, articles[2].ID, []float64{9, 9}, "stale")

	cached, missing, err := r.LoadCached(ctx, articles)
	if err != nil {
		t.Fatalf("load cached: %v", err)
	}
	if len(cached) != 2 || len(missing) != 4 {
		t.Fatalf("expected 2 cached and 4 missing, got %d and %d", len(cached), len(missing))
	}

	var lastDone int
	vectors, err := r.EmbedArticles(ctx, missing, func(done, total int) {
		if total != 4 || done < lastDone {
			t.Errorf("unexpected progress %d/%d", done, total)
		}
		lastDone = done
	})
	if err != nil {
		t.Fatalf("embed articles: %v", err)
	}
	if len(vectors) != 4 || lastDone != 4 {
		t.Fatalf("expected 4 vectors and full progress, got %d and %d", len(vectors), lastDone)
	}
	if client.callCount() != 4 {
		t.Fatalf("expected one request per missing article, got %d", client.callCount())
	}
	if usage.byCtx[domain.CallContextArticleEmbedding] != 4 {
		t.Fatalf("usage not recorded: %+v", usage.byCtx)
	}

	// second pass over the same articles is fully cached
	cached, missing, err = r.LoadCached(ctx, articles)
	if err != nil {
		t.Fatalf("load cached again: %v", err)
	}
	if len(cached) != 6 || len(missing) != 0 {
		t.Fatalf("expected everything cached, got %d cached, %d missing", len(cached), len(missing))
	}
	if client.callCount() != 4 {
		t.Fatalf("cache hit must not issue requests")
	}
}

func TestResolverChangedTextInvalidatesCache(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	store := newMemoryStore()
	r := NewResolver(client, store, nil, nil, Options{QPS: 100}, nil)
	ctx := context.Background()

	article := makeArticles(1)[0]
	_ = store.PersistEmbedding(ctx, article.ID, []float64{1}, Digest(client.Model(), Text(article)))

	article.Snippet = "rewritten snippet"
	_, missing, err := r.LoadCached(ctx, []domain.Article{article})
	if err != nil {
		t.Fatalf("load cached: %v", err)
	}
	if len(missing) != 1 {
		t.Fatalf("edited article should be recomputed")
	}
}

func TestResolverRetriesThenExcludes(t *testing.T) {
	t.Parallel()

	articles := makeArticles(3)
	client := &fakeClient{failures: map[string]int{
		articles[0].Title: 1,
		articles[1].Title: -1,
	}}
	store := newMemoryStore()
	r := NewResolver(client, store, nil, nil, Options{QPS: 100, Backoff: -1}, nil)

	vectors, err := r.EmbedArticles(context.Background(), articles, nil)
	var excluded *ExcludedError
	if !errors.As(err, &excluded) || excluded.Count != 1 {
		t.Fatalf("expected one excluded article, got %v", err)
	}
	var provider *domain.ProviderError
	if !errors.As(err, &provider) || provider.StatusCode != 500 {
		t.Fatalf("provider failure not carried: %v", err)
	}
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != articles[0].ID || ids[1] != articles[2].ID {
		t.Fatalf("expected flaky article recovered and broken one excluded, got %v", ids)
	}
	// 2 attempts for a-00, 2 for a-01, 1 for a-02
	if client.callCount() != 5 {
		t.Fatalf("expected 5 requests, got %d", client.callCount())
	}
	if _, ok := store.vectors[articles[1].ID]; ok {
		t.Fatalf("failed article must not be persisted")
	}
}

func TestResolverRespectsQPS(t *testing.T) {
	t.Parallel()

	const qps = 5
	client := &fakeClient{}
	r := NewResolver(client, newMemoryStore(), nil, nil, Options{QPS: qps, Concurrency: 8}, nil)

	vectors, err := r.EmbedArticles(context.Background(), makeArticles(23), nil)
	if err != nil {
		t.Fatalf("embed articles: %v", err)
	}
	if len(vectors) != 23 {
		t.Fatalf("expected 23 vectors, got %d", len(vectors))
	}

	client.mu.Lock()
	calls := append([]time.Time(nil), client.calls...)
	client.mu.Unlock()
	sort.Slice(calls, func(i, j int) bool { return calls[i].Before(calls[j]) })

	for i := range calls {
		inWindow := 0
		for j := i; j < len(calls) && calls[j].Sub(calls[i]) < time.Second; j++ {
			inWindow++
		}
		if inWindow > qps {
			t.Fatalf("window starting at request %d holds %d requests", i, inWindow)
		}
	}
	if span := calls[len(calls)-1].Sub(calls[0]); span < 4*time.Second {
		t.Fatalf("23 requests at %d qps should span at least 5 one-second windows, span %v", qps, span)
	}
}

func TestResolverCancellation(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeClient{}, newMemoryStore(), nil, nil, Options{QPS: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.EmbedArticles(ctx, makeArticles(3), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestEmbedTopicUsesCache(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	topics := &memoryTopics{vectors: make(map[string][]float64)}
	usage := &usageCounter{}
	r := NewResolver(client, newMemoryStore(), topics, usage, Options{QPS: 1}, nil)
	ctx := context.Background()

	first, err := r.EmbedTopic(ctx, "  AI Regulation ")
	if err != nil {
		t.Fatalf("embed topic: %v", err)
	}
	second, err := r.EmbedTopic(ctx, "ai regulation")
	if err != nil {
		t.Fatalf("embed topic again: %v", err)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected one provider call, got %d", client.callCount())
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Fatalf("cached vector differs: %v vs %v", first, second)
	}
	if usage.byCtx[domain.CallContextTopicEmbedding] != 1 {
		t.Fatalf("topic usage not recorded: %+v", usage.byCtx)
	}
	if _, err := r.EmbedTopic(ctx, "   "); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestEmbedTopicPropagatesProviderError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{failures: map[string]int{"chips": -1}}
	r := NewResolver(client, newMemoryStore(), nil, nil, Options{QPS: 1}, nil)

	_, err := r.EmbedTopic(context.Background(), "chips")
	var provider *domain.ProviderError
	if !errors.As(err, &provider) || provider.StatusCode != 500 {
		t.Fatalf("expected provider error, got %v", err)
	}
}
