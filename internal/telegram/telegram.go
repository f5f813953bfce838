package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.telegram.org"

// Client posts messages to one chat through the Bot API.
type Client struct {
	token   string
	chatID  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(token, chatID, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) Name() string { return "telegram" }

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send makes one attempt to deliver text. Link previews stay on so the
// article card shows under the post.
func (c *Client) Send(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)

	payload := map[string]any{
		"chat_id":                  c.chatID,
		"text":                     text,
		"disable_web_page_preview": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", "error", err)
		}
	}(resp.Body)

	var out apiResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)

	if resp.StatusCode != http.StatusOK || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, out.Description)
		}
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}

	c.logger.Info("message sent to Telegram", "chat_id", c.chatID)
	return nil
}
