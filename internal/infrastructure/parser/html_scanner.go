package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/scanner"
)

// Default selectors for listing pages; every one can be overridden through feed options.
const (
	defaultItemSelector    = "article"
	defaultTitleSelector   = "h2, h3"
	defaultLinkSelector    = "a[href]"
	defaultSummarySelector = "p"
	defaultDateSelector    = "time"
	defaultDateLayout      = time.RFC3339
)

// HTMLListScanner scrapes sites without a feed by walking a listing page with CSS selectors.
type HTMLListScanner struct {
	client *http.Client
	now    func() time.Time
}

// NewHTMLListScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewHTMLListScanner(client *http.Client) *HTMLListScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLListScanner{client: client, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (h *HTMLListScanner) Name() string {
	return "html"
}

// Scan fetches the listing page and extracts one article per item element.
func (h *HTMLListScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	base, err := url.Parse(req.URL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("listing %s: invalid url %q", req.SourceName, req.URL)
	}

	doc, err := h.fetchDocument(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", req.SourceName, err)
	}

	var (
		results []domain.Article
		seen    = map[string]struct{}{}
	)
	doc.Find(req.Option("item", defaultItemSelector)).Each(func(_ int, item *goquery.Selection) {
		article, ok := h.parseEntry(item, base, req)
		if !ok {
			return
		}
		if _, dup := seen[article.ID]; dup {
			return
		}
		seen[article.ID] = struct{}{}
		results = append(results, article)
	})

	return results, nil
}

func (h *HTMLListScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ArticlesConsolidator/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (h *HTMLListScanner) parseEntry(item *goquery.Selection, base *url.URL, req scanner.Request) (domain.Article, bool) {
	title := collapse(item.Find(req.Option("title", defaultTitleSelector)).First().Text())

	link := item.Find(req.Option("link", defaultLinkSelector)).First()
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if title == "" {
		title = collapse(link.Text())
	}
	if title == "" || href == "" {
		return domain.Article{}, false
	}
	if ref, err := url.Parse(href); err == nil {
		href = base.ResolveReference(ref).String()
	}

	summary := collapse(item.Find(req.Option("summary", defaultSummarySelector)).First().Text())

	publishedAt := h.now().UTC()
	dateSel := item.Find(req.Option("date", defaultDateSelector)).First()
	dateText, ok := dateSel.Attr("datetime")
	if !ok {
		dateText = dateSel.Text()
	}
	if dateText = strings.TrimSpace(dateText); dateText != "" {
		if parsed, err := time.Parse(req.Option("dateLayout", defaultDateLayout), dateText); err == nil {
			publishedAt = parsed.UTC()
		}
	}

	return domain.Article{
		ID:          articleID(req.SourceID, href),
		SourceID:    req.SourceID,
		Title:       title,
		Snippet:     Snippet(summary),
		URL:         href,
		PublishedAt: publishedAt,
	}, true
}
