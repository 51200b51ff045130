package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// SessionInput identifies a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"the recording session identifier"`
}

// SegmentInput identifies one segment of a session.
type SegmentInput struct {
	SessionID string `json:"session_id" jsonschema:"the recording session identifier"`
	Index     int    `json:"index" jsonschema:"zero-based segment index"`
}

// ProgressOutput is the output schema for the session_progress tool.
type ProgressOutput struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
	Percent   int    `json:"percent"`
	Segments  int    `json:"segments"`
}

// ChunksOutput is the output schema for the session_chunks tool.
type ChunksOutput struct {
	Chunks []ChunkOutput `json:"chunks"`
	Count  int           `json:"count"`
}

// ChunkOutput represents a single chunk.
type ChunkOutput struct {
	Seq       int    `json:"seq"`
	Status    string `json:"status"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	Attempts  int    `json:"attempts"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SegmentsOutput is the output schema for the session_segments tool.
type SegmentsOutput struct {
	Segments []SegmentOutput `json:"segments"`
	Count    int             `json:"count"`
}

// SegmentOutput represents a single segment.
type SegmentOutput struct {
	Index      int    `json:"index"`
	Status     string `json:"status"`
	TokenCount int    `json:"token_count"`
	HasSummary bool   `json:"has_summary"`
	Error      string `json:"error,omitempty"`
}

// SummaryOutput is the output schema for the segment_summary tool.
type SummaryOutput struct {
	Index   int    `json:"index"`
	Summary string `json:"summary"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "session_progress",
		Description: "Transcription progress of a recording session",
	}, s.handleProgress)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "session_chunks",
		Description: "Audio chunks of a session with their transcription state, in sequence order",
	}, s.handleChunks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "session_segments",
		Description: "Transcript segments of a session with their summary state",
	}, s.handleSegments)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "segment_summary",
		Description: "The JSON summary produced for one segment",
	}, s.handleSegmentSummary)
}

func (s *Server) handleProgress(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ProgressOutput, error) {
	p, err := s.ports.Query.Progress(ctx, input.SessionID)
	if err != nil {
		return nil, ProgressOutput{}, err
	}
	return nil, ProgressOutput{
		SessionID: p.SessionID,
		Status:    p.Status,
		Total:     p.Total,
		Succeeded: p.Succeeded,
		Failed:    p.Failed,
		Pending:   p.Pending,
		Percent:   p.Percent,
		Segments:  p.Segments,
	}, nil
}

func (s *Server) handleChunks(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ChunksOutput, error) {
	chunks, err := s.ports.Query.Chunks(ctx, input.SessionID)
	if err != nil {
		return nil, ChunksOutput{}, err
	}

	output := ChunksOutput{
		Chunks: make([]ChunkOutput, len(chunks)),
		Count:  len(chunks),
	}
	for i := range chunks {
		output.Chunks[i] = ChunkOutput{
			Seq:       chunks[i].Seq,
			Status:    string(chunks[i].Status),
			StartMs:   chunks[i].StartMs,
			EndMs:     chunks[i].EndMs,
			Attempts:  chunks[i].Attempts,
			ErrorCode: chunks[i].ErrorCode,
			Error:     chunks[i].ErrorMessage,
		}
	}
	return nil, output, nil
}

func (s *Server) handleSegments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, SegmentsOutput, error) {
	segments, err := s.ports.Query.Segments(ctx, input.SessionID)
	if err != nil {
		return nil, SegmentsOutput{}, err
	}

	output := SegmentsOutput{
		Segments: make([]SegmentOutput, len(segments)),
		Count:    len(segments),
	}
	for i := range segments {
		output.Segments[i] = SegmentOutput{
			Index:      segments[i].Index,
			Status:     string(segments[i].Status),
			TokenCount: segments[i].TokenCount,
			HasSummary: segments[i].SummaryKey != "",
			Error:      segments[i].ErrorMessage,
		}
	}
	return nil, output, nil
}

func (s *Server) handleSegmentSummary(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SegmentInput,
) (*mcp.CallToolResult, SummaryOutput, error) {
	segments, err := s.ports.Query.Segments(ctx, input.SessionID)
	if err != nil {
		return nil, SummaryOutput{}, err
	}
	for i := range segments {
		if segments[i].Index != input.Index {
			continue
		}
		if segments[i].SummaryKey == "" {
			return nil, SummaryOutput{}, fmt.Errorf("segment %d is %s: %w", input.Index, segments[i].Status, domain.ErrNotFound)
		}
		data, err := s.ports.Query.Object(ctx, segments[i].SummaryKey)
		if err != nil {
			return nil, SummaryOutput{}, fmt.Errorf("reading summary: %w", err)
		}
		return nil, SummaryOutput{Index: input.Index, Summary: string(data)}, nil
	}
	return nil, SummaryOutput{}, fmt.Errorf("segment %d: %w", input.Index, domain.ErrNotFound)
}
