package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const snippetRunes = 500

// PlainText strips markup from an HTML fragment and collapses whitespace.
func PlainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	doc.Find("script, style").Remove()
	return collapse(doc.Text())
}

// Snippet returns at most snippetRunes runes of plain text.
func Snippet(fragment string) string {
	text := []rune(PlainText(fragment))
	if len(text) <= snippetRunes {
		return string(text)
	}
	return strings.TrimSpace(string(text[:snippetRunes])) + "..."
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// articleID derives a stable identifier unique across sources.
func articleID(sourceID, key string) string {
	sum := sha256.Sum256([]byte(sourceID + "\x00" + key))
	return hex.EncodeToString(sum[:12])
}
