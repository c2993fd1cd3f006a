package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

var (
	_ ports.ItemStore         = (*SQLiteStore)(nil)
	_ ports.ArticleRepository = (*SQLiteStore)(nil)
)

// KnownIDs returns a map with IDs that already exist in storage.
func (s *SQLiteStore) KnownIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.query(ctx, sq.Select("id").From("articles").Where(sq.Eq{"id": ids}))
	if err != nil {
		return nil, fmt.Errorf("query known ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// UpsertArticles inserts new articles and refreshes the text of known ones, returning how many were new.
// Stored embeddings are kept; the digest check decides whether they still apply.
func (s *SQLiteStore) UpsertArticles(ctx context.Context, articles []domain.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	known, err := s.KnownIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := s.now().UnixMilli()
	inserted := 0
	for _, a := range articles {
		stmt := sq.Insert("articles").
			Columns("id", "source_id", "title", "snippet", "content", "url", "published_at", "created_at").
			Values(a.ID, a.SourceID, a.Title, a.Snippet, a.Content, a.URL, a.PublishedAt.UnixMilli(), created).
			Suffix(`ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				snippet = excluded.snippet,
				content = excluded.content,
				url = excluded.url,
				published_at = excluded.published_at`)
		if _, err := exec(ctx, tx, stmt); err != nil {
			return 0, fmt.Errorf("upsert article %s: %w", a.ID, err)
		}
		if !known[a.ID] {
			known[a.ID] = true
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return inserted, nil
}

// QueryByDateRange returns articles published at or after since, optionally limited to sources.
func (s *SQLiteStore) QueryByDateRange(ctx context.Context, sourceIDs []string, since *time.Time) ([]domain.Article, error) {
	b := sq.Select("id", "source_id", "title", "snippet", "content", "url", "published_at").
		From("articles").
		OrderBy("published_at DESC", "id")
	if len(sourceIDs) > 0 {
		b = b.Where(sq.Eq{"source_id": sourceIDs})
	}
	if since != nil {
		b = b.Where(sq.GtOrEq{"published_at": since.UnixMilli()})
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		var (
			a         domain.Article
			published int64
		)
		if err := rows.Scan(&a.ID, &a.SourceID, &a.Title, &a.Snippet, &a.Content, &a.URL, &published); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.PublishedAt = time.UnixMilli(published).UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// LoadEmbeddings reads the persisted vectors of the given articles. Articles without one are absent.
func (s *SQLiteStore) LoadEmbeddings(ctx context.Context, ids []string) (map[string]domain.StoredEmbedding, error) {
	out := make(map[string]domain.StoredEmbedding)
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.query(ctx, sq.Select("id", "embedding", "embedding_digest").
		From("articles").
		Where(sq.Eq{"id": ids}).
		Where(sq.NotEq{"embedding": nil}))
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			blob   []byte
			digest sql.NullString
		)
		if err := rows.Scan(&id, &blob, &digest); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vector, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", id, err)
		}
		out[id] = domain.StoredEmbedding{ArticleID: id, Vector: vector, Digest: digest.String}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// PersistEmbedding writes the vector onto the article record. Concurrent writers are last-write-wins.
func (s *SQLiteStore) PersistEmbedding(ctx context.Context, articleID string, vector []float64, digest string) error {
	res, err := exec(ctx, s.db, sq.Update("articles").
		Set("embedding", encodeVector(vector)).
		Set("embedding_digest", digest).
		Where(sq.Eq{"id": articleID}))
	if err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("persist embedding: article %s not found", articleID)
	}
	return nil
}

// CountArticles returns the number of stored articles.
func (s *SQLiteStore) CountArticles(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}
