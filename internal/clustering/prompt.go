package clustering

import (
	"fmt"
	"strings"

	"ArticlesConsolidator/internal/domain"
)

const snippetLimit = 300

const systemMessage = `You are an editor who groups news articles into thematic clusters.
Reply with a single JSON object and nothing else.`

func buildPrompt(articles []domain.Article, topic, standard string) string {
	var b strings.Builder

	b.WriteString("Group the following articles into thematic clusters.\n")
	if topic = strings.TrimSpace(topic); topic != "" {
		fmt.Fprintf(&b, "\n## Topic\n%s\n", topic)
	}
	if standard = strings.TrimSpace(standard); standard != "" {
		fmt.Fprintf(&b, "\n## Classification Standard\n%s\nGroup the articles according to this standard.\n", standard)
	}

	b.WriteString(`
## Rules
1. Every article belongs to exactly one group.
2. Group labels are concise (max 40 characters) and consistent.
3. Each group has a one or two sentence description of what its articles share.
4. Articles that fit no group may be left out; they are collected separately.

## Output Format
{
  "groups": [
    { "label": "Group label", "description": "What these articles have in common" }
  ],
  "assignments": [
    { "articleIndex": 0, "group": "Group label" }
  ]
}

## Articles
`)
	for i, article := range articles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Article %d:\nID: %s\nTitle: %s\nPublished Date: %s\nSummary: %s\n",
			i, article.ID, oneLine(article.Title), article.PublishedAt.Format("2006-01-02"), summary(article))
	}
	return b.String()
}

func summary(article domain.Article) string {
	text := strings.TrimSpace(article.Snippet)
	if text == "" {
		text = strings.TrimSpace(article.Content)
	}
	runes := []rune(oneLine(text))
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return string(runes)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
