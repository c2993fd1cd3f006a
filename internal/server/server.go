// Package server exposes consolidation sessions over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/logging"
	"ArticlesConsolidator/internal/progress"
	"ArticlesConsolidator/internal/usecase"
)

// Service is what the HTTP API needs from the application.
type Service interface {
	Query(ctx context.Context, req usecase.Request, observer usecase.Observer) (usecase.Result, error)
	Clear() bool
	Progress() *progress.Snapshot
	Tokens() (domain.TokenStatistics, []domain.TokenUsageRecord)
	MonthlyUsage(ctx context.Context, year int, month time.Month) ([]domain.MonthlyStatistics, error)
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Topic                  string   `json:"topic"`
	TimeRangeDays          *int     `json:"timeRangeDays"`
	ClassificationStandard string   `json:"classificationStandard"`
	SourceIDs              []string `json:"sourceIds"`
}

// ArticleView is the JSON shape of an article.
type ArticleView struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"sourceId"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// ClusterView is the JSON shape of a cluster.
type ClusterView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ArticleIDs  []string `json:"articleIds"`
}

// QueryResponse is the body returned for a finished session.
type QueryResponse struct {
	SessionID            string                 `json:"sessionId"`
	Articles             []ArticleView          `json:"articles"`
	Clusters             []ClusterView          `json:"clusters"`
	TokenStats           domain.TokenStatistics `json:"tokenStats"`
	TimeRangeHasArticles bool                   `json:"timeRangeHasArticles"`
	Warning              string                 `json:"warning,omitempty"`
	Progress             *progress.Snapshot     `json:"progress,omitempty"`
}

type handler struct {
	service Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(service Service, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handler{service: service, logger: logging.Component(logger, "http"), now: time.Now}
	api := r.Group("/api")
	api.POST("/query", h.query)
	api.DELETE("/query", h.clear)
	api.GET("/progress", h.progress)
	api.GET("/usage", h.usage)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func (h *handler) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload: " + err.Error()})
		return
	}

	res, err := h.service.Query(c.Request.Context(), usecase.Request{
		TimeRangeDays:          req.TimeRangeDays,
		Topic:                  req.Topic,
		ClassificationStandard: req.ClassificationStandard,
		SourceIDs:              req.SourceIDs,
	}, nil)
	if err != nil {
		h.logger.Warn("query failed", "error", err)
		c.JSON(statusFor(err), gin.H{"error": domain.HumanMessage(err), "sessionId": res.SessionID})
		return
	}
	c.JSON(http.StatusOK, toResponse(res))
}

func (h *handler) clear(c *gin.Context) {
	cleared := h.service.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (h *handler) progress(c *gin.Context) {
	stats, records := h.service.Tokens()
	c.JSON(http.StatusOK, gin.H{
		"progress":   h.service.Progress(),
		"tokenStats": stats,
		"records":    records,
	})
}

func (h *handler) usage(c *gin.Context) {
	now := h.now().UTC()
	year, month := now.Year(), now.Month()
	if raw := c.Query("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1970 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = v
	}
	if raw := c.Query("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 12 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month"})
			return
		}
		month = time.Month(v)
	}

	stats, err := h.service.MonthlyUsage(c.Request.Context(), year, month)
	if err != nil {
		h.logger.Error("monthly usage", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	if stats == nil {
		stats = []domain.MonthlyStatistics{}
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "month": int(month), "models": stats})
}

func statusFor(err error) int {
	var cfgErr *domain.ConfigurationError
	var provider *domain.ProviderError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrSessionSuperseded):
		return http.StatusConflict
	case errors.As(err, &provider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func toResponse(res usecase.Result) QueryResponse {
	out := QueryResponse{
		SessionID:            res.SessionID,
		Articles:             make([]ArticleView, len(res.Articles)),
		Clusters:             make([]ClusterView, len(res.Clusters)),
		TokenStats:           res.TokenStats,
		TimeRangeHasArticles: res.TimeRangeHasArticles,
		Progress:             res.Progress,
	}
	for i, a := range res.Articles {
		out.Articles[i] = ArticleView{ID: a.ID, SourceID: a.SourceID, Title: a.Title, Snippet: a.Snippet, URL: a.URL, PublishedAt: a.PublishedAt}
	}
	for i, cl := range res.Clusters {
		out.Clusters[i] = ClusterView{ID: cl.ID, Title: cl.Title, Description: cl.Description, ArticleIDs: cl.ArticleIDs()}
	}
	if res.Warning != nil {
		out.Warning = domain.HumanMessage(res.Warning)
	}
	return out
}
