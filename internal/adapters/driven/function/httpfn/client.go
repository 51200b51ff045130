// Package httpfn invokes the segment summarizer and session finalizer as
// plain HTTP functions.
//
// Each function receives its request document as a JSON POST body and
// answers with a JSON document. Non-2xx answers are transport failures.
package httpfn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// DefaultTimeout bounds one function invocation.
const DefaultTimeout = 120 * time.Second

// Config holds configuration for one function endpoint.
type Config struct {
	// URL is the function endpoint (required).
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// client posts JSON documents to a single endpoint.
type client struct {
	name   string
	http   *http.Client
	url    string
	apiKey string
}

func newClient(name string, cfg Config) (*client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%s: URL is required", name)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &client{
		name:   name,
		http:   &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		apiKey: cfg.APIKey,
	}, nil
}

func (c *client) invoke(ctx context.Context, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s error (status %d): %s", c.name, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, fmt.Errorf("%s: empty response", c.name)
	}
	return json.RawMessage(respBody), nil
}

// Ensure the function clients implement their ports.
var (
	_ driven.Summarizer = (*Summarizer)(nil)
	_ driven.Finalizer  = (*Finalizer)(nil)
)

// Summarizer calls a summarization function over HTTP.
type Summarizer struct {
	c *client
}

// NewSummarizer creates an HTTP summarizer.
func NewSummarizer(cfg Config) (*Summarizer, error) {
	c, err := newClient("summarizer", cfg)
	if err != nil {
		return nil, err
	}
	return &Summarizer{c: c}, nil
}

// Summarize posts the segment request and returns the function's answer.
func (s *Summarizer) Summarize(ctx context.Context, req driven.SummarizeRequest) (json.RawMessage, error) {
	return s.c.invoke(ctx, req)
}

// Finalizer calls the session finalization function over HTTP.
type Finalizer struct {
	c *client
}

// NewFinalizer creates an HTTP finalizer.
func NewFinalizer(cfg Config) (*Finalizer, error) {
	c, err := newClient("finalizer", cfg)
	if err != nil {
		return nil, err
	}
	return &Finalizer{c: c}, nil
}

// Finalize posts the consolidated summary reference and returns the result.
func (f *Finalizer) Finalize(ctx context.Context, req driven.FinalizeRequest) (json.RawMessage, error) {
	return f.c.invoke(ctx, req)
}
