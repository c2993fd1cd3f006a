package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/ports"
)

// ChatGPTClient implements ports.ChatClient backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	client openai.Client
	model  string
}

var _ ports.ChatClient = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatConfig, timeout time.Duration) (*ChatGPTClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigurationError{Field: "chat.apiKey", Reason: "API key is missing"}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &domain.ConfigurationError{Field: "chat.model", Reason: "model is missing"}
	}
	opts, err := RequestOptions("chat.endpoint", cfg.Endpoint, cfg.APIKey, timeout)
	if err != nil {
		return nil, err
	}
	return &ChatGPTClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Model returns the configured chat model.
func (c *ChatGPTClient) Model() string {
	return c.model
}

// Complete sends one system+user exchange and returns the first choice.
func (c *ChatGPTClient) Complete(ctx context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	if c == nil {
		return ports.ChatResponse{}, fmt.Errorf("chatgpt client is nil")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.ChatResponse{}, WrapError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return ports.ChatResponse{}, WrapError("chat completion", errors.New("response has no choices"))
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return ports.ChatResponse{
		Model:   model,
		Content: resp.Choices[0].Message.Content,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
