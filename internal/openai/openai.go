// Package openai is a Completer for OpenAI-compatible chat APIs, including a
// local Ollama server on its /v1 endpoint.
package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/sportsdesk/internal/llm"
)

const DefaultModel = openai.GPT4oMini

type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ llm.Completer = (*Client)(nil)

// NewClient talks to baseURL when set, api.openai.com otherwise.
func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	chat := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
		Temperature: 0,
	}
	if req.JSON {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Close() error { return nil }
