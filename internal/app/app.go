package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/infrastructure/llm"
	"ArticlesConsolidator/internal/infrastructure/ml"
	"ArticlesConsolidator/internal/infrastructure/parser"
	"ArticlesConsolidator/internal/infrastructure/scheduler"
	"ArticlesConsolidator/internal/infrastructure/storage"
	"ArticlesConsolidator/internal/infrastructure/telegram"
	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/ports"
	"ArticlesConsolidator/internal/progress"
	"ArticlesConsolidator/internal/scanner"
	"ArticlesConsolidator/internal/server"
	"ArticlesConsolidator/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.SQLiteStore
	source    *parser.StrategySource
	sessions  *usecase.Sessions
	board     *usecase.Board
	ingestor  *usecase.Ingestor
	scheduler *usecase.Scheduler
	notifier  *telegram.Notifier
}

var _ server.Service = (*Application)(nil)

// New opens the item store and builds the use cases.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open item store: %w", err)
	}

	feedClient := &http.Client{Timeout: 30 * time.Second}
	registry := scanner.NewRegistry(
		parser.NewRSSScanner(feedClient),
		parser.NewHTMLListScanner(feedClient),
	)
	source := parser.NewStrategySource(registry, cfg.Feeds, baseLogger)

	consolidator := usecase.NewConsolidator(usecase.ConsolidatorDeps{
		Store:              store,
		Topics:             store,
		History:            store,
		NewEmbeddingClient: newEmbeddingClient,
		NewChatClient:      newChatClient,
		Logger:             baseLogger,
	})
	ingestor := usecase.NewIngestor(source, store, store.Path()+".lock", baseLogger)

	var driver ports.Scheduler
	if cfg.Scheduler.RefreshInterval > 0 {
		driver = scheduler.NewIntervalScheduler(cfg.Scheduler.RefreshInterval, cfg.Scheduler.Location())
	}

	board := &usecase.Board{}
	sessions := usecase.NewSessions(consolidator)
	sessions.OnReset(board.Reset)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		source:    source,
		sessions:  sessions,
		board:     board,
		ingestor:  ingestor,
		scheduler: usecase.NewScheduler(driver, ingestor, baseLogger),
		notifier:  telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID),
	}, nil
}

func newEmbeddingClient(cfg config.EmbeddingConfig, timeout time.Duration) (ports.EmbeddingClient, error) {
	return ml.NewClient(cfg, timeout)
}

func newChatClient(cfg config.ChatConfig, timeout time.Duration) (ports.ChatClient, error) {
	return llm.NewChatGPTClient(cfg, timeout)
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// Sources lists the configured feeds.
func (a *Application) Sources() []domain.Source {
	return a.source.Sources()
}

// Query runs a consolidation session; observer may be nil.
func (a *Application) Query(ctx context.Context, req usecase.Request, observer usecase.Observer) (usecase.Result, error) {
	observers := usecase.Fanout{a.board}
	if observer != nil {
		observers = append(observers, observer)
	}
	return a.sessions.Run(ctx, req, a.cfg.QueryConfig(), observers)
}

// Clear cancels the running session and forgets its progress.
func (a *Application) Clear() bool {
	return a.sessions.Clear()
}

// Progress returns the live progress of the current session.
func (a *Application) Progress() *progress.Snapshot {
	return a.board.Progress()
}

// Tokens returns the usage of the current session.
func (a *Application) Tokens() (domain.TokenStatistics, []domain.TokenUsageRecord) {
	return a.board.Tokens()
}

// MonthlyUsage aggregates the API call history for one month.
func (a *Application) MonthlyUsage(ctx context.Context, year int, month time.Month) ([]domain.MonthlyStatistics, error) {
	return a.store.MonthlyStatistics(ctx, year, month)
}

// Ingest refreshes all feeds once.
func (a *Application) Ingest(ctx context.Context) (usecase.IngestReport, error) {
	return a.ingestor.Run(ctx)
}

// NotifierConfigured reports whether digests can be delivered.
func (a *Application) NotifierConfigured() bool {
	return a.notifier.Configured()
}

// PublishDigest sends the result of a session to Telegram.
func (a *Application) PublishDigest(ctx context.Context, topic string, res usecase.Result) error {
	if !a.notifier.Configured() {
		return errors.New("telegram notifications are not configured")
	}
	return usecase.PublishDigest(ctx, a.notifier, topic, res)
}

// Serve starts the refresh scheduler and the HTTP API and blocks until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.scheduler.Stop(stopCtx); err != nil {
			a.logger.Warn("stop scheduler", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           server.NewRouter(a, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http api listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		a.Clear()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

// Close releases the item store.
func (a *Application) Close() error {
	return a.store.Close()
}
