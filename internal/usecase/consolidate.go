package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ArticlesConsolidator/internal/clustering"
	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/embedding"
	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/ports"
	"ArticlesConsolidator/internal/progress"
	"ArticlesConsolidator/internal/ranking"
	"ArticlesConsolidator/internal/timefilter"
	"ArticlesConsolidator/internal/tokens"
)

// Request is one consolidation query.
type Request struct {
	// TimeRangeDays bounds the publish date; nil means unlimited.
	TimeRangeDays          *int
	Topic                  string
	ClassificationStandard string
	SourceIDs              []string
	SessionID              string
}

// Result is what a finished session returns. Warning carries non-fatal problems.
type Result struct {
	SessionID            string                  `json:"sessionId"`
	Articles             []domain.Article        `json:"-"`
	Clusters             []domain.ArticleCluster `json:"clusters"`
	TokenStats           domain.TokenStatistics  `json:"tokenStats"`
	TimeRangeHasArticles bool                    `json:"timeRangeHasArticles"`
	Warning              error                   `json:"-"`
	Progress             *progress.Snapshot      `json:"progress,omitempty"`
}

// EmbeddingClientFactory builds an embedding client from the session configuration.
type EmbeddingClientFactory func(cfg config.EmbeddingConfig, timeout time.Duration) (ports.EmbeddingClient, error)

// ChatClientFactory builds a chat client from the session configuration.
type ChatClientFactory func(cfg config.ChatConfig, timeout time.Duration) (ports.ChatClient, error)

// ConsolidatorDeps wires driven adapters into the consolidation use case.
type ConsolidatorDeps struct {
	Store              ports.ItemStore
	Topics             ports.TopicCache
	History            ports.UsageHistory
	NewEmbeddingClient EmbeddingClientFactory
	NewChatClient      ChatClientFactory
	// Embedding tunes retries and fan-out; QPS and batch size come from the query config.
	Embedding embedding.Options
	Logger    *slog.Logger
}

// Consolidator runs the retrieval and consolidation pipeline.
type Consolidator struct {
	store     ports.ItemStore
	topics    ports.TopicCache
	history   ports.UsageHistory
	newEmbed  EmbeddingClientFactory
	newChat   ChatClientFactory
	embedOpts embedding.Options
	logger    *slog.Logger
}

// NewConsolidator constructs the orchestration component.
func NewConsolidator(deps ConsolidatorDeps) *Consolidator {
	return &Consolidator{
		store:     deps.Store,
		topics:    deps.Topics,
		history:   deps.History,
		newEmbed:  deps.NewEmbeddingClient,
		newChat:   deps.NewChatClient,
		embedOpts: deps.Embedding,
		logger:    logging.Component(deps.Logger, "consolidator"),
	}
}

var stepTitles = map[string]string{
	progress.StepQueryDB:               "Query articles",
	progress.StepComputeTopicEmbedding: "Embed topic",
	progress.StepLoadEmbeddings:        "Load cached embeddings",
	progress.StepComputeEmbeddings:     "Embed articles",
	progress.StepCalculateSimilarity:   "Rank by similarity",
	progress.StepLLMRefine:             "Cluster with LLM",
}

func newStep(id string, status progress.Status) progress.Step {
	return progress.Step{ID: id, Title: stepTitles[id], Status: status, Visible: true}
}

// session is the per-run state shared by the pipeline stages.
type session struct {
	id       string
	tracker  *progress.Tracker
	usage    *tokens.Accumulator
	resolver *embedding.Resolver
	chat     ports.ChatClient
	cfg      config.QueryConfig
	logger   *slog.Logger
}

func (s *session) update(id string, status progress.Status, message string, percent *int) {
	if err := s.tracker.Update(id, status, message, percent); err != nil {
		s.logger.Debug("progress update rejected", "step", id, "error", err)
	}
}

// Run executes one consolidation session. Failures before clustering discard progress and are returned;
// a clustering failure is reported through Result.Warning.
func (c *Consolidator) Run(ctx context.Context, req Request, cfg config.QueryConfig, observer Observer) (Result, error) {
	if observer == nil {
		observer = NopObserver{}
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := c.logger.With("session", sessionID)

	s, err := c.prepare(sessionID, req, cfg, observer, logger)
	if err != nil {
		logger.Warn("session rejected", "error", err)
		return Result{SessionID: sessionID}, err
	}

	res, err := c.run(ctx, s, req)
	res.SessionID = sessionID
	res.TokenStats = s.usage.Statistics()
	if err != nil {
		s.tracker.Discard()
		logger.Error("consolidation aborted", "error", err)
		return res, err
	}
	res.Progress = s.tracker.Snapshot()
	logger.Info("consolidation finished",
		"articles", len(res.Articles),
		"clusters", len(res.Clusters),
		"tokens", res.TokenStats.TotalTokens,
		"warning", res.Warning,
	)
	return res, nil
}

func (c *Consolidator) prepare(sessionID string, req Request, cfg config.QueryConfig, observer Observer, logger *slog.Logger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, &domain.ConfigurationError{Field: "topic", Reason: "topic is empty"}
	}
	if req.TimeRangeDays != nil && *req.TimeRangeDays < 0 {
		return nil, &domain.ConfigurationError{Field: "timeRangeDays", Reason: "must not be negative"}
	}
	if c.newChat == nil {
		return nil, errors.New("consolidator: chat client factory is missing")
	}

	chat, err := c.newChat(cfg.Chat, cfg.Timeout())
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}

	s := &session{
		id:      sessionID,
		tracker: progress.NewTracker(observer),
		usage:   tokens.NewAccumulator(c.history, observer, logger),
		chat:    chat,
		cfg:     cfg,
		logger:  logger,
	}

	if cfg.EmbeddingsEnabled() && c.newEmbed != nil {
		client, err := c.newEmbed(cfg.Embedding, cfg.Timeout())
		if err != nil {
			return nil, fmt.Errorf("embedding client: %w", err)
		}
		opts := c.embedOpts
		opts.QPS = cfg.Embedding.QPS
		opts.BatchSize = cfg.Embedding.BatchSize
		opts.Timeout = cfg.Timeout()
		s.resolver = embedding.NewResolver(client, c.store, c.topics, s.usage, opts, logger)
	}
	return s, nil
}

func (c *Consolidator) run(ctx context.Context, s *session, req Request) (Result, error) {
	if err := s.tracker.Append(newStep(progress.StepQueryDB, progress.StatusInProgress)); err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	filter := timefilter.New(c.store)
	window, err := filter.Apply(ctx, req.TimeRangeDays, req.SourceIDs)
	if err != nil {
		return Result{}, err
	}
	candidates := window.Candidates
	res := Result{TimeRangeHasArticles: window.HasArticles}

	if len(candidates) == 0 {
		s.update(progress.StepQueryDB, progress.StatusCompleted, "No articles in the selected time range", nil)
		res.Articles = []domain.Article{}
		res.Clusters = []domain.ArticleCluster{}
		res.Warning = domain.ErrNoArticlesInRange
		return res, nil
	}
	s.update(progress.StepQueryDB, progress.StatusCompleted, foundMessage(len(candidates), window.Since), nil)

	topk := s.cfg.TopK
	var selected []domain.Article
	switch {
	case len(candidates) <= topk:
		selected = candidates
	case s.resolver == nil:
		s.logger.Info("embeddings not configured, keeping most recent articles", "candidates", len(candidates), "topk", topk)
		selected = candidates[:topk]
	default:
		selected, err = c.rank(ctx, s, req.Topic, candidates, topk)
		if err != nil {
			return Result{}, err
		}
	}

	if err := s.tracker.Append(newStep(progress.StepLLMRefine, progress.StatusPending)); err != nil {
		return Result{}, err
	}
	res.Articles = selected
	res.Clusters, res.Warning = c.cluster(ctx, s, req, selected)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (c *Consolidator) rank(ctx context.Context, s *session, topic string, candidates []domain.Article, topk int) ([]domain.Article, error) {
	err := s.tracker.Append(
		newStep(progress.StepComputeTopicEmbedding, progress.StatusPending),
		newStep(progress.StepLoadEmbeddings, progress.StatusPending),
		newStep(progress.StepComputeEmbeddings, progress.StatusPending),
		newStep(progress.StepCalculateSimilarity, progress.StatusPending),
	)
	if err != nil {
		return nil, err
	}

	s.update(progress.StepComputeTopicEmbedding, progress.StatusInProgress, "Embedding topic", nil)
	topicVector, err := s.resolver.EmbedTopic(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.update(progress.StepComputeTopicEmbedding, progress.StatusCompleted, "Topic embedded", nil)

	s.update(progress.StepLoadEmbeddings, progress.StatusInProgress, "Loading cached embeddings", nil)
	vectors, missing, err := s.resolver.LoadCached(ctx, candidates)
	if err != nil {
		return nil, err
	}
	s.update(progress.StepLoadEmbeddings, progress.StatusCompleted, fmt.Sprintf("Loaded %d cached embeddings", len(vectors)), nil)

	s.update(progress.StepComputeEmbeddings, progress.StatusInProgress, fmt.Sprintf("Embedding %d articles", len(missing)), progress.Percent(0))
	computed, err := s.resolver.EmbedArticles(ctx, missing, func(done, total int) {
		s.update(progress.StepComputeEmbeddings, progress.StatusInProgress,
			fmt.Sprintf("Embedded %d of %d articles", done, total), progress.Percent(done*100/total))
	})
	var excluded *embedding.ExcludedError
	if err != nil && !errors.As(err, &excluded) {
		return nil, err
	}
	for id, v := range computed {
		vectors[id] = v
	}
	if len(vectors) == 0 {
		if excluded != nil {
			return nil, fmt.Errorf("no article could be embedded: %w", excluded.Err)
		}
		return nil, &domain.ProviderError{Op: "embed articles", Err: errors.New("no article could be embedded")}
	}
	if failed := len(missing) - len(computed); failed > 0 {
		s.logger.Warn("articles excluded from ranking", "count", failed, "error", err)
	}
	s.update(progress.StepComputeEmbeddings, progress.StatusCompleted, fmt.Sprintf("Embedded %d articles", len(computed)), nil)

	s.update(progress.StepCalculateSimilarity, progress.StatusInProgress, "Ranking articles", nil)
	byID := make(map[string]domain.Article, len(candidates))
	pool := make([]ranking.Candidate, 0, len(vectors))
	for _, a := range candidates {
		byID[a.ID] = a
		if v, ok := vectors[a.ID]; ok {
			pool = append(pool, ranking.Candidate{ID: a.ID, Vector: v, PublishedAt: a.PublishedAt})
		}
	}
	scored := ranking.Rank(topicVector, pool, topk)
	selected := make([]domain.Article, len(scored))
	for i, sc := range scored {
		selected[i] = byID[sc.ID]
	}
	s.update(progress.StepCalculateSimilarity, progress.StatusCompleted, fmt.Sprintf("Selected %d most relevant articles", len(selected)), nil)
	return selected, nil
}

// cluster degrades to an empty cluster list and returns the failure as a warning.
func (c *Consolidator) cluster(ctx context.Context, s *session, req Request, articles []domain.Article) ([]domain.ArticleCluster, error) {
	s.update(progress.StepLLMRefine, progress.StatusInProgress, fmt.Sprintf("Clustering %d articles", len(articles)), nil)

	synth := clustering.New(s.chat, s.usage, s.cfg.Timeout(), s.logger)
	clusters, err := synth.Cluster(ctx, articles, req.Topic, req.ClassificationStandard)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		s.logger.Warn("clustering failed, returning flat article list", "error", err)
		s.update(progress.StepLLMRefine, progress.StatusError, domain.HumanMessage(err), nil)
		return []domain.ArticleCluster{}, err
	}
	if clusters == nil {
		clusters = []domain.ArticleCluster{}
	}
	s.update(progress.StepLLMRefine, progress.StatusCompleted, fmt.Sprintf("Created %d clusters", len(clusters)), nil)
	return clusters, nil
}

func foundMessage(count int, since *time.Time) string {
	if since == nil {
		return fmt.Sprintf("Found %d articles", count)
	}
	return fmt.Sprintf("Found %d articles since %s", count, since.Format("2006-01-02"))
}
