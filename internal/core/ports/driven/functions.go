package driven

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// SummarizeRequest is the input to the segment summarizer.
type SummarizeRequest struct {
	SessionID    string `json:"session_id"`
	SegmentIndex int    `json:"segment_index"`
	InputKey     string `json:"input_key"`
	InputURL     string `json:"input_url,omitempty"`
	Text         string `json:"text"`
}

// Summarizer turns one segment of transcript text into a JSON summary.
//
// Implementations may include:
//   - an HTTP function endpoint
//   - Anthropic (Claude)
type Summarizer interface {
	// Summarize returns the raw summary document. The caller validates that it
	// is JSON; transport failures are returned as errors.
	Summarize(ctx context.Context, req SummarizeRequest) (json.RawMessage, error)
}

// FinalizeRequest is the input to the terminal finalizer.
type FinalizeRequest struct {
	SessionID   string             `json:"session_id"`
	BusinessIDs domain.BusinessIDs `json:"business_ids"`
	SummaryKey  string             `json:"summary_key"`
	SummaryURL  string             `json:"summary_url,omitempty"`
}

// Finalizer is invoked once per session with the consolidated summary.
type Finalizer interface {
	// Finalize returns the raw result document.
	Finalize(ctx context.Context, req FinalizeRequest) (json.RawMessage, error)
}
