// Package eligibility provides the HTTP client for the refund-eligibility
// evaluation endpoint. The decision depends on server-held account data
// (credits spent, inactivity windows, refund history), so it is always made
// remotely; callers must treat any error as "escalate", never as a decision.
package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wisio/supportdesk/internal/dialogue"
	"github.com/wisio/supportdesk/internal/domain"
)

var (
	errEmptyURL        = errors.New("evaluation endpoint URL is empty")
	errUnknownDecision = errors.New("evaluation returned unknown decision")
)

// Config holds configuration for the evaluation client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
	}
}

// Client calls the evaluation endpoint. Implements dialogue.Evaluator.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

var _ dialogue.Evaluator = (*Client)(nil)

// NewClient creates an evaluation client.
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

// Evaluate posts the request and decodes the decision. The call is attempted
// exactly once; retry policy belongs to the user's next turn, not here.
func (c *Client) Evaluate(ctx context.Context, req dialogue.EvaluationRequest) (*domain.Evaluation, error) {
	if req.ClientCount < 1 {
		return nil, fmt.Errorf("clientCount must be >= 1, got %d", req.ClientCount)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build evaluation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call evaluation endpoint: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close evaluation response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		// Read a little of the body for the log, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("evaluation endpoint returned non-200",
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return nil, fmt.Errorf("evaluation endpoint returned status %d", resp.StatusCode)
	}

	var result domain.Evaluation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode evaluation response: %w", err)
	}
	if !result.Decision.Valid() {
		return nil, fmt.Errorf("%w: %q", errUnknownDecision, result.Decision)
	}

	c.logger.Info("eligibility evaluated",
		"decision", result.Decision,
		"client_count", req.ClientCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &result, nil
}
