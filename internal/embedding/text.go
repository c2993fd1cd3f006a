package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"

	"ArticlesConsolidator/internal/domain"
)

const maxContentFallback = 1000

// Text is the string sent to the provider for an article: title and snippet on separate lines.
func Text(article domain.Article) string {
	body := strings.TrimSpace(article.Snippet)
	if body == "" {
		body = truncateRunes(strings.TrimSpace(article.Content), maxContentFallback)
	}
	return norm.NFC.String(strings.TrimSpace(article.Title) + "\n" + body)
}

// Digest fingerprints the embedded text for a model. A stored vector is reused only while it matches.
func Digest(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// TopicKey normalizes a topic for the topic vector cache.
func TopicKey(topic string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(topic)))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// TopicText is the string sent to the provider for a topic.
func TopicText(topic string) string {
	return norm.NFC.String(strings.TrimSpace(topic))
}
