package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

var _ ports.UsageHistory = (*SQLiteStore)(nil)

// AppendUsage records one API call.
func (s *SQLiteStore) AppendUsage(ctx context.Context, record domain.TokenUsageRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := exec(ctx, s.db, sq.Insert("api_calls").
		Columns("model", "api_type", "call_context", "prompt_tokens", "completion_tokens", "total_tokens", "created_at").
		Values(record.Model, string(record.APIType), record.CallContext, record.PromptTokens, record.CompletionTokens, record.TotalTokens, ts.UnixMilli()))
	if err != nil {
		return fmt.Errorf("append usage: %w", err)
	}
	return nil
}

// MonthlyStatistics sums requests and tokens per model for one calendar month in UTC.
func (s *SQLiteStore) MonthlyStatistics(ctx context.Context, year int, month time.Month) ([]domain.MonthlyStatistics, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows, err := s.query(ctx, sq.Select(
		"model",
		"COUNT(*)",
		"COALESCE(SUM(prompt_tokens), 0)",
		"COALESCE(SUM(completion_tokens), 0)",
		"COALESCE(SUM(total_tokens), 0)",
	).
		From("api_calls").
		Where(sq.GtOrEq{"created_at": start.UnixMilli()}).
		Where(sq.Lt{"created_at": end.UnixMilli()}).
		GroupBy("model").
		OrderBy("model"))
	if err != nil {
		return nil, fmt.Errorf("query monthly statistics: %w", err)
	}
	defer rows.Close()

	var out []domain.MonthlyStatistics
	for rows.Next() {
		var st domain.MonthlyStatistics
		if err := rows.Scan(&st.Model, &st.RequestCount, &st.PromptTokens, &st.CompletionTokens, &st.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
