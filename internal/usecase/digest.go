package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

// FormatDigest renders a finished session as plain text for chat delivery.
// Without clusters the flat article list is printed.
func FormatDigest(topic string, res Result) string {
	if len(res.Articles) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%d articles", strings.TrimSpace(topic), len(res.Articles))
	if len(res.Clusters) > 0 {
		fmt.Fprintf(&b, " in %d groups", len(res.Clusters))
	}
	b.WriteString("\n\n")

	if len(res.Clusters) == 0 {
		writeArticles(&b, res.Articles)
		return b.String()
	}
	for _, cluster := range res.Clusters {
		fmt.Fprintf(&b, "## %s\n", cluster.Title)
		if cluster.Description != "" {
			fmt.Fprintf(&b, "%s\n", cluster.Description)
		}
		writeArticles(&b, cluster.Articles)
		b.WriteString("\n")
	}
	return b.String()
}

func writeArticles(b *strings.Builder, articles []domain.Article) {
	for _, article := range articles {
		fmt.Fprintf(b, "- %s\n", article.Title)
		if article.URL != "" {
			fmt.Fprintf(b, "  %s\n", article.URL)
		}
	}
}

// PublishDigest formats res and hands it to the notifier. Empty results are not sent.
func PublishDigest(ctx context.Context, notifier ports.Notifier, topic string, res Result) error {
	if notifier == nil {
		return errors.New("publish digest: no notifier configured")
	}
	message := FormatDigest(topic, res)
	if message == "" {
		return nil
	}
	if err := notifier.PublishDigest(ctx, message); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}
	return nil
}
