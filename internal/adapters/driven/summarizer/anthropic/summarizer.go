// Package anthropic provides a segment summarizer backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// Default configuration values.
const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

// DefaultSystemPrompt instructs the model to answer with a single JSON object.
const DefaultSystemPrompt = `You summarise one segment of a recorded conversation transcript.
Respond with a single JSON object and nothing else, using this shape:
{"summary": string, "key_points": [string], "action_items": [string]}
Use empty arrays when there is nothing to report.`

// MessagesClient captures the subset of the Anthropic SDK client used by the
// summarizer. It is satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Config holds configuration for the summarizer.
type Config struct {
	// APIKey is the Anthropic API key (required by NewFromAPIKey).
	APIKey string

	// Model is the model identifier (default: DefaultModel).
	Model string

	// MaxTokens caps the completion (default: DefaultMaxTokens).
	MaxTokens int

	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string
}

// Ensure Summarizer implements the interface.
var _ driven.Summarizer = (*Summarizer)(nil)

// Summarizer implements driven.Summarizer with Claude.
type Summarizer struct {
	msg       MessagesClient
	model     string
	maxTokens int
	system    string
}

// New creates a summarizer over an existing messages client.
func New(msg MessagesClient, cfg Config) (*Summarizer, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Summarizer{
		msg:       msg,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		system:    cfg.SystemPrompt,
	}, nil
}

// NewFromAPIKey constructs a summarizer using the default Anthropic HTTP client.
func NewFromAPIKey(cfg Config) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return New(&client.Messages, cfg)
}

// Summarize asks the model for a JSON summary of the segment text. The reply
// is returned as-is once code fences are stripped; the caller validates it.
func (s *Summarizer) Summarize(ctx context.Context, req driven.SummarizeRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("anthropic: segment text is empty")
	}

	prompt := fmt.Sprintf("Session %s, segment %d.\n\nTranscript:\n%s", req.SessionID, req.SegmentIndex, req.Text)
	msg, err := s.msg.New(ctx, sdk.MessageNewParams{
		MaxTokens: int64(s.maxTokens),
		Model:     sdk.Model(s.model),
		System:    []sdk.TextBlockParam{{Text: s.system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("anthropic: no response content returned")
	}
	return json.RawMessage(stripFences(text.String())), nil
}

// ModelName returns the model in use.
func (s *Summarizer) ModelName() string {
	return s.model
}

// stripFences removes a surrounding ```json fence if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
