// Package summary calls an OpenAI-compatible chat-completions endpoint to
// turn extracted notice text into short digests.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/oamon/internal/config"
)

// maxInputBytes caps what we send to the model; OA notices past this size
// are almost certainly attachments pasted inline.
const maxInputBytes = 32 << 10

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

type chatChoice struct {
	Message message `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Client summarizes notice text through a chat-completions API, with a
// token-bucket rate limit and retry with exponential backoff.
type Client struct {
	cfg        config.AIConfig
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *log.Logger

	maxRetries int
	baseDelay  time.Duration
}

// NewClient builds a summarization client from configuration.
func NewClient(cfg config.AIConfig, logger *log.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    NewRateLimiter(5, 12*time.Second),
		logger:     logger,
		maxRetries: 3,
		baseDelay:  time.Second,
	}
}

// Summarize sends the notice text and returns the model's summary. The same
// input yields a semantically equivalent summary; callers must not expect
// byte-identical output.
func (c *Client) Summarize(ctx context.Context, title, text string) (string, error) {
	if c.cfg.Endpoint == "" {
		return "", fmt.Errorf("summarizer endpoint not configured")
	}
	if len(text) > maxInputBytes {
		return "", fmt.Errorf("notice text too large (%d bytes)", len(text))
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: fmt.Sprintf("标题：%s\n\n%s", title, text)},
		},
		Stream:      false,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
			c.logger.Debug("retrying summarization", "title", title, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		for !c.limiter.GetToken() {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		summary, err := c.post(ctx, body)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		c.logger.Warn("summarization attempt failed", "title", title, "attempt", attempt, "error", err)
	}

	return "", fmt.Errorf("summarize after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("summarizer returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summarizer returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
