// Package openai implements the impact text-generation backend over any
// OpenAI-compatible chat completion endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bissquit/riskengine/internal/impact"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
	openaisdk "github.com/sashabaranov/go-openai"
)

// Defaults applied when the prompt and config leave a setting unset.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 300
)

// Config holds backend client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client generates text through the chat completion API.
type Client struct {
	client      *openaisdk.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient creates a new backend client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai client: api key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	sdkConfig := openaisdk.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		sdkConfig.BaseURL = config.BaseURL
	}

	slog.Info("text generation backend configured",
		"model", config.Model,
		"base_url", sdkConfig.BaseURL,
	)

	return &Client{
		client:      openaisdk.NewClientWithConfig(sdkConfig),
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
	}, nil
}

// Generate implements impact.TextGenerator.
func (c *Client) Generate(ctx context.Context, prompt impact.Prompt) (string, error) {
	req := openaisdk.ChatCompletionRequest{
		Model: c.model,
		Messages: []openaisdk.ChatCompletionMessage{
			{Role: openaisdk.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openaisdk.ChatMessageRoleUser, Content: prompt.User},
		},
		Temperature:         c.temperature,
		MaxCompletionTokens: c.maxTokens,
	}
	if prompt.Temperature > 0 {
		req.Temperature = prompt.Temperature
	}
	if prompt.MaxTokens > 0 {
		req.MaxCompletionTokens = prompt.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}

	ctxlog.FromContext(ctx).Debug("chat completion received",
		"model", resp.Model,
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)

	return resp.Choices[0].Message.Content, nil
}
