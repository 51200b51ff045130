package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for stitch resources.
	uriScheme = "stitch://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Template for a session record.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sessions/{sessionId}",
		Name:        "session",
		Description: "State of a recording session",
		MIMEType:    "application/json",
	}, s.handleSessionResource)

	// Template for the consolidated summary.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sessions/{sessionId}/summary",
		Name:        "session-summary",
		Description: "Consolidated summary of a finalized session",
		MIMEType:    "application/json",
	}, s.handleSummaryResource)
}

// handleSessionResource returns the session record.
func (s *Server) handleSessionResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id, suffix := extractSessionID(req.Params.URI)
	if id == "" || suffix != "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	session, err := s.ports.Query.Session(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	info := struct {
		ID                 string  `json:"id"`
		Status             string  `json:"status"`
		NextSegmentIndex   int     `json:"next_segment_index"`
		RollingTokenCount  int     `json:"rolling_token_count"`
		LastKeptEndSeconds float64 `json:"last_kept_end_seconds"`
		EndRequested       bool    `json:"end_requested"`
	}{
		ID:                 session.ID,
		Status:             string(session.Status),
		NextSegmentIndex:   session.NextSegmentIndex,
		RollingTokenCount:  session.RollingTokenCount,
		LastKeptEndSeconds: session.LastKeptEndSeconds,
		EndRequested:       session.EndRequested,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling session: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleSummaryResource returns the consolidated summary document.
func (s *Server) handleSummaryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id, suffix := extractSessionID(req.Params.URI)
	if id == "" || suffix != "summary" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	session, err := s.ports.Query.Session(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if session.FinalSummaryKey == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	data, err := s.ports.Query.Object(ctx, session.FinalSummaryKey)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractSessionID splits a URI like stitch://sessions/{sessionId}[/suffix].
func extractSessionID(uri string) (id, suffix string) {
	const prefix = uriScheme + "sessions/"

	if !strings.HasPrefix(uri, prefix) {
		return "", ""
	}

	rest := strings.TrimPrefix(uri, prefix)
	id, suffix, _ = strings.Cut(rest, "/")
	return id, suffix
}
