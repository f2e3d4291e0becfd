// Package responder provides the HTTP client for the text-generation
// endpoint used by the free-text fallback. Any non-empty text field counts
// as success; everything else is an error the engine turns into escalation.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/wisio/supportdesk/internal/dialogue"
)

var (
	errEmptyURL   = errors.New("generation endpoint URL is empty")
	errEmptyReply = errors.New("generation returned no usable text")
)

// Config holds configuration for the generation client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Client calls the text-generation endpoint. Implements dialogue.Responder.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

var _ dialogue.Responder = (*Client)(nil)

// NewClient creates a generation client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errEmptyURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    cfg.URL,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Respond posts the prompt and returns the single completion, sanitized to
// the light markup the widget renders (bold and line breaks).
func (c *Client) Respond(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call generation endpoint: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close generation response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation endpoint returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}

	text := Sanitize(out.Text)
	if text == "" {
		return "", errEmptyReply
	}

	c.logger.Info("fallback reply generated",
		"prompt_length", len(prompt),
		"reply_length", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var (
	brPattern  = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagPattern = regexp.MustCompile(`<[^>]+>`)
)

// Sanitize reduces generated text to the markup the transcript supports:
// **bold** markers and plain line breaks. All other tags are stripped.
func Sanitize(text string) string {
	text = brPattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
