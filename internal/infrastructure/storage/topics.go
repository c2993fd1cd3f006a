package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"ArticlesConsolidator/internal/ports"
)

var _ ports.TopicCache = (*SQLiteStore)(nil)

// LoadTopicEmbedding looks up a cached topic vector.
func (s *SQLiteStore) LoadTopicEmbedding(ctx context.Context, model, topic string) ([]float64, bool, error) {
	query, args, err := sq.Select("vector").From("topic_embeddings").
		Where(sq.Eq{"model": model, "topic": topic}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build topic lookup: %w", err)
	}
	var blob []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load topic embedding: %w", err)
	}
	vector, err := decodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode topic embedding: %w", err)
	}
	return vector, true, nil
}

// SaveTopicEmbedding stores a topic vector and prunes the cache to the newest entries.
func (s *SQLiteStore) SaveTopicEmbedding(ctx context.Context, model, topic string, vector []float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin topic save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := sq.Insert("topic_embeddings").
		Columns("model", "topic", "vector", "created_at").
		Values(model, topic, encodeVector(vector), s.now().UnixNano()).
		Suffix("ON CONFLICT(model, topic) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at")
	if _, err := exec(ctx, tx, insert); err != nil {
		return fmt.Errorf("save topic embedding: %w", err)
	}

	prune := sq.Delete("topic_embeddings").
		Where(sq.Expr("rowid NOT IN (SELECT rowid FROM topic_embeddings ORDER BY created_at DESC LIMIT ?)", topicCacheLimit))
	if _, err := exec(ctx, tx, prune); err != nil {
		return fmt.Errorf("prune topic embeddings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit topic save: %w", err)
	}
	return nil
}
