package clustering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

type scriptedChat struct {
	content string
	err     error
	got     ports.ChatRequest
}

func (s *scriptedChat) Model() string { return "test-chat" }

func (s *scriptedChat) Complete(_ context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	s.got = req
	if s.err != nil {
		return ports.ChatResponse{}, s.err
	}
	return ports.ChatResponse{Content: s.content, Usage: domain.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150}}, nil
}

type recorded struct {
	model, callContext string
	usage              domain.Usage
}

type recorderStub struct{ calls []recorded }

func (r *recorderStub) AddRecord(_ context.Context, model string, _ domain.APIType, callContext string, usage domain.Usage) domain.TokenUsageRecord {
	r.calls = append(r.calls, recorded{model: model, callContext: callContext, usage: usage})
	return domain.TokenUsageRecord{}
}

func sampleArticles(n int) []domain.Article {
	out := make([]domain.Article, n)
	for i := range out {
		out[i] = domain.Article{
			ID:          fmt.Sprintf("item-%d", i),
			Title:       fmt.Sprintf("Headline %d", i),
			Snippet:     strings.Repeat("word ", 100),
			PublishedAt: time.Date(2025, 3, i+1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func assertPartition(t *testing.T, input []domain.Article, clusters []domain.ArticleCluster) {
	t.Helper()
	seen := make(map[string]int)
	for _, c := range clusters {
		if len(c.Articles) == 0 {
			t.Fatalf("cluster %s is empty", c.ID)
		}
		for _, a := range c.Articles {
			seen[a.ID]++
		}
	}
	for _, a := range input {
		if seen[a.ID] != 1 {
			t.Fatalf("article %s appears %d times", a.ID, seen[a.ID])
		}
	}
	if len(seen) != len(input) {
		t.Fatalf("clusters reference %d articles, input has %d", len(seen), len(input))
	}
}

func TestClusterPartitionsInput(t *testing.T) {
	t.Parallel()

	articles := sampleArticles(40)
	var assignments []string
	for i := range articles {
		assignments = append(assignments, fmt.Sprintf(`{"articleIndex": %d, "group": "Group %d"}`, i, i%3))
	}
	content := fmt.Sprintf(`{"groups": [
		{"label": "Group 0", "description": "first"},
		{"label": "Group 1", "description": "second"},
		{"label": "Group 2"}
	], "assignments": [%s]}`, strings.Join(assignments, ","))

	chat := &scriptedChat{content: content}
	rec := &recorderStub{}
	clusters, err := New(chat, rec, time.Second, nil).Cluster(context.Background(), articles, "AI regulation", "")
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(clusters) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(clusters))
	}
	assertPartition(t, articles, clusters)
	if clusters[0].ID != "cluster-0" || clusters[0].Description != "first" {
		t.Fatalf("unexpected first cluster: %+v", clusters[0])
	}
	if clusters[2].Description == "" {
		t.Fatalf("missing description should get a fallback")
	}
	if len(rec.calls) != 1 || rec.calls[0].callContext != domain.CallContextClustering || rec.calls[0].model != "test-chat" {
		t.Fatalf("usage not recorded: %+v", rec.calls)
	}
	if !chat.got.JSON || chat.got.Temperature != temperature || chat.got.MaxTokens != maxTokens {
		t.Fatalf("unexpected request options: %+v", chat.got)
	}
}

func TestClusterPromptContents(t *testing.T) {
	t.Parallel()

	chat := &scriptedChat{content: `{"assignments":[{"articleIndex":0,"group":"A"},{"articleIndex":1,"group":"A"}]}`}
	_, err := New(chat, nil, time.Second, nil).Cluster(context.Background(), sampleArticles(2), "chip export controls", "by country")
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	prompt := chat.got.User
	for _, want := range []string{"Article 1:", "ID: item-1", "Title: Headline 0", "chip export controls", "by country", "Published Date: 2025-03-02"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, strings.Repeat("word ", 70)) {
		t.Fatalf("snippets should be truncated")
	}
}

func TestClusterToleratesFencesAndOmissions(t *testing.T) {
	t.Parallel()

	content := "Here you go:\n```json\n{\"assignments\": [{\"articleIndex\": 0, \"group\": \"Chips\"}, {\"articleId\": \"item-2\", \"group\": \"chips\"}, {\"articleIndex\": 0, \"group\": \"Chips\"}]}\n```"
	articles := sampleArticles(4)
	clusters, err := New(&scriptedChat{content: content}, nil, time.Second, nil).Cluster(context.Background(), articles, "t", "")
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	assertPartition(t, articles, clusters)
	if len(clusters) != 2 {
		t.Fatalf("expected Chips and Other, got %d clusters", len(clusters))
	}
	if got := clusters[0].ArticleIDs(); len(got) != 2 || got[0] != "item-0" || got[1] != "item-2" {
		t.Fatalf("unexpected chips members: %v", got)
	}
	other := clusters[1]
	if other.ID != otherClusterID || other.Title != otherClusterTitle {
		t.Fatalf("expected synthesized other cluster, got %+v", other)
	}
	if got := other.ArticleIDs(); len(got) != 2 || got[0] != "item-1" || got[1] != "item-3" {
		t.Fatalf("unexpected leftovers: %v", got)
	}
}

func TestClusterMergesModelOtherGroup(t *testing.T) {
	t.Parallel()

	content := `{"assignments":[{"articleIndex":0,"group":"Other"},{"articleIndex":1,"group":"Policy"}]}`
	articles := sampleArticles(3)
	clusters, err := New(&scriptedChat{content: content}, nil, time.Second, nil).Cluster(context.Background(), articles, "t", "")
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	assertPartition(t, articles, clusters)
	last := clusters[len(clusters)-1]
	if last.ID != otherClusterID || len(last.Articles) != 2 {
		t.Fatalf("expected merged other cluster, got %+v", last)
	}
}

func TestClusterRejectsInvalidResponses(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"malformed":    `{"assignments": [`,
		"empty":        ``,
		"out of range": `{"assignments":[{"articleIndex":7,"group":"A"}]}`,
		"two groups":   `{"assignments":[{"articleIndex":0,"group":"A"},{"articleIndex":0,"group":"B"}]}`,
		"no reference": `{"assignments":[{"group":"A"}]}`,
		"unknown id":   `{"assignments":[{"articleId":"nope","group":"A"}]}`,
		"no group":     `{"assignments":[{"articleIndex":0}]}`,
		"nothing":      `{"groups":[{"label":"A"}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := New(&scriptedChat{content: content}, nil, time.Second, nil).Cluster(context.Background(), sampleArticles(2), "t", "")
			var clusterErr *domain.ClusteringError
			if !errors.As(err, &clusterErr) {
				t.Fatalf("expected clustering error, got %v", err)
			}
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation cause, got %v", err)
			}
		})
	}
}

func TestClusterWrapsProviderError(t *testing.T) {
	t.Parallel()

	cause := &domain.ProviderError{Op: "chat completion", StatusCode: 429, Err: errors.New("slow down")}
	_, err := New(&scriptedChat{err: cause}, nil, time.Second, nil).Cluster(context.Background(), sampleArticles(1), "t", "")
	var clusterErr *domain.ClusteringError
	if !errors.As(err, &clusterErr) {
		t.Fatalf("expected clustering error, got %v", err)
	}
	var provider *domain.ProviderError
	if !errors.As(err, &provider) || provider.StatusCode != 429 {
		t.Fatalf("provider cause lost: %v", err)
	}
}

func TestClusterEmptyInput(t *testing.T) {
	t.Parallel()

	chat := &scriptedChat{}
	clusters, err := New(chat, nil, time.Second, nil).Cluster(context.Background(), nil, "t", "")
	if err != nil || clusters != nil {
		t.Fatalf("expected no-op, got %v %v", clusters, err)
	}
	if chat.got.User != "" {
		t.Fatalf("no request expected for empty input")
	}
}
