package clustering

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ArticlesConsolidator/internal/domain"
)

const (
	otherClusterID    = "cluster-other"
	otherClusterTitle = "Other"
	otherDescription  = "Articles that did not fit any other group."
)

type clusterResponse struct {
	Groups      []groupEntry      `json:"groups"`
	Assignments []assignmentEntry `json:"assignments"`
}

type groupEntry struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

type assignmentEntry struct {
	ArticleIndex *int   `json:"articleIndex"`
	ArticleID    string `json:"articleId"`
	Group        string `json:"group"`
}

// decodeResponse unmarshals the model output, tolerating code fences and surrounding prose.
func decodeResponse(content string) (clusterResponse, error) {
	var resp clusterResponse
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return resp, errors.New("empty response")
	}
	if err := json.Unmarshal([]byte(trimmed), &resp); err == nil {
		return resp, nil
	}
	sanitized := sanitizeJSON(trimmed)
	if err := json.Unmarshal([]byte(sanitized), &resp); err != nil {
		return clusterResponse{}, fmt.Errorf("decode clustering response: %w (payload: %s)", err, snippet(sanitized))
	}
	return resp, nil
}

func sanitizeJSON(content string) string {
	trimmed := stripCodeFence(content)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[start+3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.Index(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(s string) string {
	const limit = 120
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return s
}

type group struct {
	label       string
	description string
	members     []int
}

// buildClusters validates that resp partitions articles and assembles the clusters.
// Omitted articles go to the Other cluster.
func buildClusters(articles []domain.Article, resp clusterResponse) ([]domain.ArticleCluster, error) {
	if len(resp.Assignments) == 0 {
		return nil, &domain.ValidationError{Reason: "no assignments"}
	}

	byID := make(map[string]int, len(articles))
	for i, a := range articles {
		byID[a.ID] = i
	}

	var groups []*group
	byLabel := make(map[string]*group)
	lookup := func(label string) *group {
		key := strings.ToLower(label)
		if g, ok := byLabel[key]; ok {
			return g
		}
		g := &group{label: label}
		byLabel[key] = g
		groups = append(groups, g)
		return g
	}

	for _, entry := range resp.Groups {
		label := oneLine(entry.Label)
		if label == "" {
			continue
		}
		g := lookup(label)
		if g.description == "" {
			g.description = strings.TrimSpace(entry.Description)
		}
	}

	owner := make(map[int]*group, len(articles))
	for _, entry := range resp.Assignments {
		label := oneLine(entry.Group)
		if label == "" {
			return nil, &domain.ValidationError{Reason: "assignment without group"}
		}
		idx, err := resolveIndex(entry, byID, len(articles))
		if err != nil {
			return nil, err
		}
		g := lookup(label)
		if prev, ok := owner[idx]; ok {
			if prev == g {
				continue
			}
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("article %d assigned to both %q and %q", idx, prev.label, g.label)}
		}
		owner[idx] = g
		g.members = append(g.members, idx)
	}

	var leftovers []int
	for i := range articles {
		if _, ok := owner[i]; !ok {
			leftovers = append(leftovers, i)
		}
	}

	clusters := make([]domain.ArticleCluster, 0, len(groups)+1)
	var other *domain.ArticleCluster
	for _, g := range groups {
		if len(g.members) == 0 {
			continue
		}
		if strings.EqualFold(g.label, otherClusterTitle) {
			members := append(append([]int(nil), g.members...), leftovers...)
			leftovers = nil
			other = &domain.ArticleCluster{ID: otherClusterID, Title: g.label, Description: describe(g.description, otherDescription), Articles: pick(articles, members)}
			continue
		}
		clusters = append(clusters, domain.ArticleCluster{
			ID:          fmt.Sprintf("cluster-%d", len(clusters)),
			Title:       g.label,
			Description: describe(g.description, fmt.Sprintf("%d related articles.", len(g.members))),
			Articles:    pick(articles, g.members),
		})
	}
	if other == nil && len(leftovers) > 0 {
		other = &domain.ArticleCluster{ID: otherClusterID, Title: otherClusterTitle, Description: otherDescription, Articles: pick(articles, leftovers)}
	}
	if other != nil {
		clusters = append(clusters, *other)
	}
	return clusters, nil
}

func resolveIndex(entry assignmentEntry, byID map[string]int, n int) (int, error) {
	if entry.ArticleIndex != nil {
		idx := *entry.ArticleIndex
		if idx < 0 || idx >= n {
			return 0, &domain.ValidationError{Reason: fmt.Sprintf("article index %d out of range [0,%d)", idx, n)}
		}
		return idx, nil
	}
	if id := strings.TrimSpace(entry.ArticleID); id != "" {
		if idx, ok := byID[id]; ok {
			return idx, nil
		}
		return 0, &domain.ValidationError{Reason: fmt.Sprintf("unknown article id %q", id)}
	}
	return 0, &domain.ValidationError{Reason: "assignment without article reference"}
}

// pick returns the members in input order.
func pick(articles []domain.Article, indices []int) []domain.Article {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	out := make([]domain.Article, len(sorted))
	for i, idx := range sorted {
		out[i] = articles[idx]
	}
	return out
}

func describe(description, fallback string) string {
	if description != "" {
		return description
	}
	return fallback
}
