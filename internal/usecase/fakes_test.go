package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/embedding"
	"ArticlesConsolidator/internal/ports"
	"ArticlesConsolidator/internal/progress"
)

type memoryStore struct {
	mu       sync.Mutex
	articles []domain.Article
	vectors  map[string]domain.StoredEmbedding
	failWith error
}

func newMemoryStore(articles []domain.Article) *memoryStore {
	return &memoryStore{articles: articles, vectors: make(map[string]domain.StoredEmbedding)}
}

func (m *memoryStore) QueryByDateRange(_ context.Context, sourceIDs []string, since *time.Time) ([]domain.Article, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Article
	for _, a := range m.articles {
		if since != nil && a.PublishedAt.Before(*since) {
			continue
		}
		if len(sourceIDs) > 0 && !slices.Contains(sourceIDs, a.SourceID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
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
	m.vectors[id] = domain.StoredEmbedding{ArticleID: id, Vector: vector, Digest: digest}
	return nil
}

// precache stores valid vectors for articles as if a previous session had embedded them.
func (m *memoryStore) precache(model string, articles []domain.Article) {
	for _, a := range articles {
		_ = m.PersistEmbedding(context.Background(), a.ID, articleVector(embedding.Text(a)), embedding.Digest(model, embedding.Text(a)))
	}
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
	if m.vectors == nil {
		m.vectors = make(map[string][]float64)
	}
	m.vectors[model+"/"+topic] = vector
	return nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.TokenUsageRecord
}

func (m *memoryHistory) AppendUsage(_ context.Context, record domain.TokenUsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryHistory) MonthlyStatistics(context.Context, int, time.Month) ([]domain.MonthlyStatistics, error) {
	return nil, nil
}

const embedModel = "test-embed"

// articleVector derives a deterministic two-dimensional vector from the text length.
func articleVector(text string) []float64 {
	return []float64{1, float64(len(text) % 17)}
}

type fakeEmbedder struct {
	mu           sync.Mutex
	topicCalls   int
	articleCalls int
	failTopic    bool
	// failArticles, when non-zero, is the status every article request fails with.
	failArticles int
}

func (f *fakeEmbedder) Model() string { return embedModel }

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) (ports.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vectors := make([][]float64, len(inputs))
	for i, input := range inputs {
		if !strings.Contains(input, "\n") {
			f.topicCalls++
			if f.failTopic {
				return ports.EmbeddingResult{}, &domain.ProviderError{Op: "embed topic", StatusCode: 401, Err: errors.New("bad key")}
			}
			vectors[i] = []float64{1, 3}
			continue
		}
		f.articleCalls++
		if f.failArticles != 0 {
			return ports.EmbeddingResult{}, &domain.ProviderError{Op: "embed articles", StatusCode: f.failArticles, Err: errors.New("rejected")}
		}
		vectors[i] = articleVector(input)
	}
	return ports.EmbeddingResult{Model: embedModel, Vectors: vectors, Usage: domain.Usage{PromptTokens: 8, TotalTokens: 8}}, nil
}

func (f *fakeEmbedder) counts() (topic, articles int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topicCalls, f.articleCalls
}

// fakeChat assigns the i-th listed article to group i%3 unless content is fixed.
type fakeChat struct {
	mu      sync.Mutex
	calls   int
	content string
}

func (f *fakeChat) Model() string { return "test-chat" }

func (f *fakeChat) Complete(_ context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	content := f.content
	f.mu.Unlock()

	if content == "" {
		n := strings.Count(req.User, "\nID: ")
		parts := make([]string, n)
		for i := range parts {
			parts[i] = fmt.Sprintf(`{"articleIndex": %d, "group": "Group %d"}`, i, i%3)
		}
		content = fmt.Sprintf(`{"assignments": [%s]}`, strings.Join(parts, ","))
	}
	return ports.ChatResponse{Model: "test-chat", Content: content, Usage: domain.Usage{PromptTokens: 500, CompletionTokens: 100, TotalTokens: 600}}, nil
}

type recordingObserver struct {
	mu        sync.Mutex
	snapshots []*progress.Snapshot
	records   []domain.TokenUsageRecord
	stats     domain.TokenStatistics
}

func (r *recordingObserver) ProgressUpdated(s *progress.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recordingObserver) TokenUsageRecorded(record domain.TokenUsageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordingObserver) TokenStatisticsUpdated(stats domain.TokenStatistics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
}

func (r *recordingObserver) last() *progress.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recordingObserver) events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots) + len(r.records)
}

// recentArticles returns n articles published one minute apart, newest first.
func recentArticles(n int) []domain.Article {
	now := time.Now()
	out := make([]domain.Article, n)
	for i := range out {
		out[i] = domain.Article{
			ID:          fmt.Sprintf("a-%03d", i),
			SourceID:    "feed",
			Title:       fmt.Sprintf("Article number %d", i),
			Snippet:     strings.Repeat("x", i%11),
			PublishedAt: now.Add(-time.Duration(i+1) * time.Minute),
		}
	}
	return out
}

func oldArticles(n int) []domain.Article {
	out := make([]domain.Article, n)
	for i := range out {
		out[i] = domain.Article{
			ID:          fmt.Sprintf("old-%d", i),
			SourceID:    "feed",
			Title:       "Stale story",
			PublishedAt: time.Now().AddDate(0, 0, -30),
		}
	}
	return out
}

func queryConfig(topk int) config.QueryConfig {
	return config.QueryConfig{
		Chat:           config.ChatConfig{Endpoint: "https://llm.example.com/v1/chat/completions", APIKey: "chat-key", Model: "test-chat"},
		Embedding:      config.EmbeddingConfig{Endpoint: "https://llm.example.com/v1/embeddings", APIKey: "embed-key", Model: embedModel, QPS: 1000, BatchSize: 1},
		TopK:           topk,
		TimeoutSeconds: 5,
	}
}

type harness struct {
	store    *memoryStore
	topics   *memoryTopics
	history  *memoryHistory
	embedder *fakeEmbedder
	chat     *fakeChat
	service  *Consolidator
}

func newHarness(articles []domain.Article) *harness {
	h := &harness{
		store:    newMemoryStore(articles),
		topics:   &memoryTopics{},
		history:  &memoryHistory{},
		embedder: &fakeEmbedder{},
		chat:     &fakeChat{},
	}
	h.service = NewConsolidator(ConsolidatorDeps{
		Store:   h.store,
		Topics:  h.topics,
		History: h.history,
		NewEmbeddingClient: func(config.EmbeddingConfig, time.Duration) (ports.EmbeddingClient, error) {
			return h.embedder, nil
		},
		NewChatClient: func(config.ChatConfig, time.Duration) (ports.ChatClient, error) {
			return h.chat, nil
		},
		Embedding: embedding.Options{Backoff: -1},
	})
	return h
}

func days(n int) *int { return &n }
