package parser

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/scanner"
)

const defaultMaxItems = 200

// RSSScanner reads RSS, Atom and JSON feeds.
type RSSScanner struct {
	client *http.Client
	now    func() time.Time
}

// NewRSSScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewRSSScanner(client *http.Client) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSScanner{client: client, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan fetches the feed and converts its items. Option "maxItems" caps the item count.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("feed %s has no url", req.SourceName)
	}
	maxItems := defaultMaxItems
	if v, err := strconv.Atoi(req.Option("maxItems", "")); err == nil && v > 0 {
		maxItems = v
	}

	fp := gofeed.NewParser()
	fp.Client = s.client
	feed, err := fp.ParseURLWithContext(req.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", req.URL, err)
	}

	count := min(len(feed.Items), maxItems)
	articles := make([]domain.Article, 0, count)
	for _, item := range feed.Items[:count] {
		if article, ok := s.convert(req.SourceID, item); ok {
			articles = append(articles, article)
		}
	}
	return articles, nil
}

func (s *RSSScanner) convert(sourceID string, item *gofeed.Item) (domain.Article, bool) {
	key := strings.TrimSpace(item.GUID)
	if key == "" {
		key = strings.TrimSpace(item.Link)
	}
	title := PlainText(item.Title)
	if key == "" || title == "" {
		return domain.Article{}, false
	}

	var publishedAt time.Time
	switch {
	case item.PublishedParsed != nil:
		publishedAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		publishedAt = *item.UpdatedParsed
	default:
		publishedAt = s.now()
	}

	summary := item.Description
	if strings.TrimSpace(summary) == "" {
		summary = item.Content
	}

	return domain.Article{
		ID:          articleID(sourceID, key),
		SourceID:    sourceID,
		Title:       title,
		Snippet:     Snippet(summary),
		Content:     PlainText(item.Content),
		URL:         item.Link,
		PublishedAt: publishedAt.UTC(),
	}, true
}
