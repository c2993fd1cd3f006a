package usecase

import (
	"context"
	"log/slog"
	"time"

	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/ports"
)

// Scheduler wires the interval driver with the ingest use case.
type Scheduler struct {
	driver   ports.Scheduler
	ingestor *Ingestor
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring feed refreshes.
func NewScheduler(driver ports.Scheduler, ingestor *Ingestor, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, ingestor: ingestor, logger: logging.Component(logger, "scheduler")}
}

// Start registers the ingestor with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.ingestor == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.ingestor.Run(ctx); err != nil {
			s.logger.Warn("scheduled ingest failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
