package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/ports"
)

const (
	defaultAttempts    = 2
	defaultBackoff     = 500 * time.Millisecond
	defaultConcurrency = 4
	defaultTimeout     = 30 * time.Second

	// limiterMargin keeps scheduling jitter from fitting qps+1 requests into one second.
	limiterMargin = 5 * time.Millisecond
)

// UsageRecorder receives the token usage of every provider call.
type UsageRecorder interface {
	AddRecord(ctx context.Context, model string, apiType domain.APIType, callContext string, usage domain.Usage) domain.TokenUsageRecord
}

// ExcludedError reports articles left out of EmbedArticles after their retries ran out.
// Err is the last provider failure.
type ExcludedError struct {
	Count int
	Err   error
}

func (e *ExcludedError) Error() string {
	return fmt.Sprintf("%d articles excluded: %v", e.Count, e.Err)
}

func (e *ExcludedError) Unwrap() error {
	return e.Err
}

// Options tune one resolver. Zero values fall back to defaults.
type Options struct {
	QPS         int
	BatchSize   int
	Concurrency int
	Attempts    int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Resolver resolves topic and article vectors, using the item store as a persistent cache.
type Resolver struct {
	client   ports.EmbeddingClient
	store    ports.ItemStore
	topics   ports.TopicCache
	recorder UsageRecorder
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
}

// NewResolver wires a resolver for one query session. topics and recorder may be nil.
func NewResolver(client ports.EmbeddingClient, store ports.ItemStore, topics ports.TopicCache, recorder UsageRecorder, opts Options, logger *slog.Logger) *Resolver {
	if opts.QPS <= 0 {
		opts.QPS = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	} else if opts.Backoff == 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	interval := time.Second/time.Duration(opts.QPS) + limiterMargin
	return &Resolver{
		client:   client,
		store:    store,
		topics:   topics,
		recorder: recorder,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		opts:     opts,
		logger:   logging.Component(logger, "embedding"),
	}
}

// EmbedTopic returns the topic vector. It is a single call that bypasses the article rate limiter.
func (r *Resolver) EmbedTopic(ctx context.Context, topic string) ([]float64, error) {
	model := r.client.Model()
	key := TopicKey(topic)
	if key == "" {
		return nil, fmt.Errorf("embed topic: topic is empty")
	}

	if r.topics != nil {
		vector, ok, err := r.topics.LoadTopicEmbedding(ctx, model, key)
		if err != nil {
			r.logger.Warn("load topic embedding", "error", err)
		} else if ok && len(vector) > 0 {
			r.logger.Debug("topic embedding cache hit", "model", model)
			return vector, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	res, err := r.client.Embed(callCtx, []string{TopicText(topic)})
	if err != nil {
		return nil, fmt.Errorf("embed topic: %w", err)
	}
	r.record(ctx, res, domain.CallContextTopicEmbedding)
	if len(res.Vectors) != 1 || len(res.Vectors[0]) == 0 {
		return nil, &domain.ProviderError{Op: "embed topic", Err: fmt.Errorf("expected 1 vector, got %d", len(res.Vectors))}
	}

	if r.topics != nil {
		if err := r.topics.SaveTopicEmbedding(ctx, model, key, res.Vectors[0]); err != nil {
			r.logger.Warn("save topic embedding", "error", err)
		}
	}
	return res.Vectors[0], nil
}

// LoadCached splits articles into those with a valid persisted vector and those still missing one.
func (r *Resolver) LoadCached(ctx context.Context, articles []domain.Article) (map[string][]float64, []domain.Article, error) {
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	stored, err := r.store.LoadEmbeddings(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load embeddings: %w", err)
	}

	model := r.client.Model()
	cached := make(map[string][]float64, len(stored))
	missing := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		entry, ok := stored[a.ID]
		if ok && len(entry.Vector) > 0 && entry.Digest == Digest(model, Text(a)) {
			cached[a.ID] = entry.Vector
			continue
		}
		missing = append(missing, a)
	}
	return cached, missing, nil
}

// EmbedArticles requests vectors for articles, persisting each success.
// Articles that still fail after retries are left out of the result, which then comes back together
// with an *ExcludedError. Cancellation returns a nil map.
func (r *Resolver) EmbedArticles(ctx context.Context, articles []domain.Article, onProgress func(done, total int)) (map[string][]float64, error) {
	out := make(map[string][]float64, len(articles))
	if len(articles) == 0 {
		return out, nil
	}

	batches := chunk(articles, r.opts.BatchSize)
	var (
		mu       sync.Mutex
		done     int
		excluded int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, batch := range batches {
		g.Go(func() error {
			vectors, err := r.embedBatch(gctx, batch)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("excluding articles after failed embedding", "count", len(batch), "first_id", batch[0].ID, "error", err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				excluded += len(batch)
				lastErr = err
			}
			for id, v := range vectors {
				out[id] = v
			}
			done += len(batch)
			if onProgress != nil {
				onProgress(done, len(articles))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed articles: %w", err)
	}
	if excluded > 0 {
		return out, &ExcludedError{Count: excluded, Err: lastErr}
	}
	return out, nil
}

func (r *Resolver) embedBatch(ctx context.Context, batch []domain.Article) (map[string][]float64, error) {
	model := r.client.Model()
	inputs := make([]string, len(batch))
	for i, a := range batch {
		inputs[i] = Text(a)
	}

	var lastErr error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, r.opts.Backoff); err != nil {
				return nil, err
			}
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := r.call(ctx, inputs)
		if err != nil {
			lastErr = err
			r.logger.Debug("embedding attempt failed", "attempt", attempt, "error", err)
			continue
		}
		r.record(ctx, res, domain.CallContextArticleEmbedding)
		if len(res.Vectors) != len(batch) {
			lastErr = &domain.ProviderError{Op: "embed articles", Err: fmt.Errorf("expected %d vectors, got %d", len(batch), len(res.Vectors))}
			continue
		}

		vectors := make(map[string][]float64, len(batch))
		for i, a := range batch {
			if len(res.Vectors[i]) == 0 {
				continue
			}
			vectors[a.ID] = res.Vectors[i]
			if err := r.store.PersistEmbedding(ctx, a.ID, res.Vectors[i], Digest(model, inputs[i])); err != nil {
				r.logger.Warn("persist embedding", "article_id", a.ID, "error", err)
			}
		}
		return vectors, nil
	}
	return nil, lastErr
}

func (r *Resolver) call(ctx context.Context, inputs []string) (ports.EmbeddingResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return r.client.Embed(callCtx, inputs)
}

func (r *Resolver) record(ctx context.Context, res ports.EmbeddingResult, callContext string) {
	if r.recorder == nil {
		return
	}
	model := res.Model
	if model == "" {
		model = r.client.Model()
	}
	r.recorder.AddRecord(ctx, model, domain.APITypeEmbedding, callContext, res.Usage)
}

func chunk(articles []domain.Article, size int) [][]domain.Article {
	batches := make([][]domain.Article, 0, (len(articles)+size-1)/size)
	for start := 0; start < len(articles); start += size {
		end := min(start+size, len(articles))
		batches = append(batches, articles[start:end])
	}
	return batches
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
