package usecase

import (
	"sync"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/progress"
)

// Observer receives live session state. Implementations must be safe for concurrent use.
type Observer interface {
	ProgressUpdated(snapshot *progress.Snapshot)
	TokenUsageRecorded(record domain.TokenUsageRecord)
	TokenStatisticsUpdated(stats domain.TokenStatistics)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) ProgressUpdated(*progress.Snapshot)            {}
func (NopObserver) TokenUsageRecorded(domain.TokenUsageRecord)     {}
func (NopObserver) TokenStatisticsUpdated(domain.TokenStatistics) {}

// Board keeps the latest state of the active session for pull-based readers such as the HTTP API.
type Board struct {
	mu       sync.RWMutex
	snapshot *progress.Snapshot
	stats    domain.TokenStatistics
	records  []domain.TokenUsageRecord
}

var _ Observer = (*Board)(nil)

// ProgressUpdated stores the snapshot; nil clears it.
func (b *Board) ProgressUpdated(snapshot *progress.Snapshot) {
	b.mu.Lock()
	b.snapshot = snapshot
	b.mu.Unlock()
}

// TokenUsageRecorded appends the record to the session log.
func (b *Board) TokenUsageRecorded(record domain.TokenUsageRecord) {
	b.mu.Lock()
	b.records = append(b.records, record)
	b.mu.Unlock()
}

// TokenStatisticsUpdated stores the running totals.
func (b *Board) TokenStatisticsUpdated(stats domain.TokenStatistics) {
	b.mu.Lock()
	b.stats = stats
	b.mu.Unlock()
}

// Progress returns the current query progress or nil.
func (b *Board) Progress() *progress.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot
}

// Tokens returns the running totals and a copy of the session records.
func (b *Board) Tokens() (domain.TokenStatistics, []domain.TokenUsageRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats, append([]domain.TokenUsageRecord(nil), b.records...)
}

// Reset forgets everything, as done when a session starts or is cleared.
func (b *Board) Reset() {
	b.mu.Lock()
	b.snapshot = nil
	b.stats = domain.TokenStatistics{}
	b.records = nil
	b.mu.Unlock()
}

// Fanout forwards events to several observers in order.
type Fanout []Observer

func (f Fanout) ProgressUpdated(s *progress.Snapshot) {
	for _, o := range f {
		o.ProgressUpdated(s)
	}
}

func (f Fanout) TokenUsageRecorded(r domain.TokenUsageRecord) {
	for _, o := range f {
		o.TokenUsageRecorded(r)
	}
}

func (f Fanout) TokenStatisticsUpdated(s domain.TokenStatistics) {
	for _, o := range f {
		o.TokenStatisticsUpdated(s)
	}
}
