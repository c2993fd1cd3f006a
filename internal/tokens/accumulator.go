package tokens

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

// Sink is notified about every usage record and the updated totals.
type Sink interface {
	TokenUsageRecorded(record domain.TokenUsageRecord)
	TokenStatisticsUpdated(stats domain.TokenStatistics)
}

// Accumulator sums token usage for one session and forwards records to the history log.
type Accumulator struct {
	mu      sync.Mutex
	stats   domain.TokenStatistics
	history ports.UsageHistory
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewAccumulator builds an accumulator; history and sink are optional.
func NewAccumulator(history ports.UsageHistory, sink Sink, logger *slog.Logger) *Accumulator {
	return &Accumulator{history: history, sink: sink, logger: logger, now: time.Now}
}

// AddRecord updates the totals and appends the record to the persistent history.
// A history write failure is logged; it never fails the provider call that produced it.
func (a *Accumulator) AddRecord(ctx context.Context, model string, apiType domain.APIType, callContext string, usage domain.Usage) domain.TokenUsageRecord {
	total := usage.TotalTokens
	if total == 0 {
		total = usage.PromptTokens + usage.CompletionTokens
	}
	record := domain.TokenUsageRecord{
		Model:            model,
		APIType:          apiType,
		CallContext:      callContext,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      total,
		Timestamp:        a.now(),
	}

	a.mu.Lock()
	a.stats.Requests++
	a.stats.PromptTokens += record.PromptTokens
	a.stats.CompletionTokens += record.CompletionTokens
	a.stats.TotalTokens += record.TotalTokens
	// totals reach the sink in the order they were summed
	if a.sink != nil {
		a.sink.TokenUsageRecorded(record)
		a.sink.TokenStatisticsUpdated(a.stats)
	}
	a.mu.Unlock()

	if a.history != nil {
		if err := a.history.AppendUsage(context.WithoutCancel(ctx), record); err != nil && a.logger != nil {
			a.logger.Warn("record api call", "model", model, "context", callContext, "error", err)
		}
	}
	return record
}

// Statistics returns the raw session sums.
func (a *Accumulator) Statistics() domain.TokenStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
