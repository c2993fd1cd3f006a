package domain

import "time"

// Article is a core entity stored locally after feed ingestion.
type Article struct {
	ID          string
	SourceID    string
	Title       string
	Snippet     string
	Content     string
	URL         string
	PublishedAt time.Time

	// Embedding is only populated when loaded explicitly from the store.
	Embedding       []float64
	EmbeddingDigest string
}

// StoredEmbedding is the persisted vector of a single article.
type StoredEmbedding struct {
	ArticleID string
	Vector    []float64
	Digest    string
}

// ArticleCluster groups topically related articles produced by the language model.
type ArticleCluster struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Articles    []Article `json:"-"`
}

// ArticleIDs returns member identifiers in cluster order.
func (c ArticleCluster) ArticleIDs() []string {
	ids := make([]string, len(c.Articles))
	for i, article := range c.Articles {
		ids[i] = article.ID
	}
	return ids
}

// Source describes a configured feed that articles are ingested from.
type Source struct {
	ID      string
	Name    string
	FeedURL string
}
