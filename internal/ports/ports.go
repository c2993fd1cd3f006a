package ports

import (
	"context"
	"time"

	"ArticlesConsolidator/internal/domain"
)

// ArticleSource pulls fresh articles from configured feeds.
type ArticleSource interface {
	FetchLatest(ctx context.Context) ([]domain.Article, error)
}

// ItemStore is the local article store; it doubles as the persistent embedding cache.
type ItemStore interface {
	QueryByDateRange(ctx context.Context, sourceIDs []string, since *time.Time) ([]domain.Article, error)
	LoadEmbeddings(ctx context.Context, ids []string) (map[string]domain.StoredEmbedding, error)
	PersistEmbedding(ctx context.Context, articleID string, vector []float64, digest string) error
}

// ArticleRepository persists ingested articles.
type ArticleRepository interface {
	UpsertArticles(ctx context.Context, articles []domain.Article) (int, error)
}

// TopicCache keeps topic vectors keyed by model and normalized topic text.
type TopicCache interface {
	LoadTopicEmbedding(ctx context.Context, model, topic string) ([]float64, bool, error)
	SaveTopicEmbedding(ctx context.Context, model, topic string, vector []float64) error
}

// UsageHistory is the append-only API call log.
type UsageHistory interface {
	AppendUsage(ctx context.Context, record domain.TokenUsageRecord) error
	MonthlyStatistics(ctx context.Context, year int, month time.Month) ([]domain.MonthlyStatistics, error)
}

// EmbeddingResult is the provider answer for one embedding request.
type EmbeddingResult struct {
	Model   string
	Vectors [][]float64
	Usage   domain.Usage
}

// EmbeddingClient talks to an OpenAI-compatible embedding endpoint.
type EmbeddingClient interface {
	Model() string
	Embed(ctx context.Context, inputs []string) (EmbeddingResult, error)
}

// ChatRequest describes one chat-completion call.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// ChatResponse carries the first choice and usage.
type ChatResponse struct {
	Model   string
	Content string
	Usage   domain.Usage
}

// ChatClient pushes prompts to LLM APIs (e.g., ChatGPT).
type ChatClient interface {
	Model() string
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Notifier streams consolidated digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
