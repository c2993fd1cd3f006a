package domain

import "time"

// APIType enumerates the provider endpoints whose usage is tracked.
type APIType string

const (
	APITypeEmbedding APIType = "embedding"
	APITypeChat      APIType = "chat"
)

// Call contexts attached to usage records.
const (
	CallContextTopicEmbedding   = "topic-embedding"
	CallContextArticleEmbedding = "article-embedding"
	CallContextClustering       = "cluster-articles"
)

// Usage is the raw token accounting returned by a provider call.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// TokenUsageRecord is one entry of the append-only API call history.
type TokenUsageRecord struct {
	Model            string    `json:"model"`
	APIType          APIType   `json:"apiType"`
	CallContext      string    `json:"callContext"`
	PromptTokens     int64     `json:"promptTokens"`
	CompletionTokens int64     `json:"completionTokens"`
	TotalTokens      int64     `json:"totalTokens"`
	Timestamp        time.Time `json:"timestamp"`
}

// TokenStatistics holds running totals for the current session.
type TokenStatistics struct {
	Requests         int   `json:"requests"`
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// MonthlyStatistics aggregates the history log per model for one month.
type MonthlyStatistics struct {
	Model            string `json:"model"`
	RequestCount     int    `json:"requestCount"`
	PromptTokens     int64  `json:"promptTokens"`
	CompletionTokens int64  `json:"completionTokens"`
	TotalTokens      int64  `json:"totalTokens"`
}
