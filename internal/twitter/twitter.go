// Package twitter posts to X through the v2 tweets endpoint.
package twitter

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

const DefaultBaseURL = "https://api.twitter.com"

type Client struct {
	token   string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient authenticates with an OAuth 2.0 user-context bearer token.
func NewClient(bearerToken, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:   bearerToken,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) Name() string { return "twitter" }

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *Client) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post tweet: %w", err)
	}
	defer resp.Body.Close()

	var out tweetResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(out.Title + " " + out.Detail)
		return fmt.Errorf("twitter API error: status %d %s", resp.StatusCode, msg)
	}

	c.logger.Info("tweet posted", "id", out.Data.ID)
	return nil
}
