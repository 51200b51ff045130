// Package remote submits chunks to an asynchronous serverless transcription
// endpoint.
//
// The endpoint accepts POST {base}/run with an input document and a webhook
// URL, answers immediately with a job id, and later reports progress by
// POSTing {id, status, output, error} to the webhook.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second
	DefaultModel   = "large-v3"
)

// ErrRateLimited is returned when the endpoint answers 429.
var ErrRateLimited = errors.New("transcriber rate limited")

// Config holds configuration for the remote transcriber.
type Config struct {
	// URL is the endpoint base URL (required).
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is forwarded in the input document.
	Model string

	// Timeout is the HTTP client timeout (default: 30s).
	Timeout time.Duration

	// RateLimit bounds submissions.
	RateLimit RateLimitConfig
}

// Ensure Client implements the interface.
var _ driven.RemoteTranscriber = (*Client)(nil)

// Client submits chunks over HTTP.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	limiter *RateLimiter
}

// runRequest is the /run request body.
type runRequest struct {
	Input   runInput `json:"input"`
	Webhook string   `json:"webhook"`
}

type runInput struct {
	AudioURL       string `json:"audio_url"`
	Model          string `json:"model,omitempty"`
	WordTimestamps bool   `json:"word_timestamps"`
	SessionID      string `json:"session_id"`
	Seq            int    `json:"seq"`
}

// runResponse is the /run response body.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewClient creates a remote transcriber client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transcriber: URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		limiter: NewRateLimiter(cfg.RateLimit),
	}, nil
}

// Submit queues the chunk and returns the remote job id.
func (c *Client) Submit(ctx context.Context, req driven.SubmitRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(runRequest{
		Input: runInput{
			AudioURL:       req.AudioURL,
			Model:          c.model,
			WordTimestamps: true,
			SessionID:      req.SessionID,
			Seq:            req.Seq,
		},
		Webhook: req.WebhookURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimitError(retryAfter(resp.Header.Get("Retry-After")))
		return "", ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcriber error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var run runResponse
	if err := json.Unmarshal(respBody, &run); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if run.Error != "" {
		return "", fmt.Errorf("transcriber error: %s", run.Error)
	}
	if run.ID == "" {
		return "", fmt.Errorf("transcriber: no job id returned")
	}
	return run.ID, nil
}

func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
