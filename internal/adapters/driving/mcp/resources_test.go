package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

func TestExtractSessionID(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		id     string
		suffix string
	}{
		{name: "session URI", uri: "stitch://sessions/s-1", id: "s-1"},
		{name: "summary URI", uri: "stitch://sessions/s-1/summary", id: "s-1", suffix: "summary"},
		{name: "invalid prefix", uri: "file://sessions/s-1"},
		{name: "empty URI", uri: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, suffix := extractSessionID(tt.uri)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.suffix, suffix)
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleSessionResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns session", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{
			session: &domain.Session{ID: "s1", Status: domain.SessionTranscribing, NextSegmentIndex: 3},
		})

		result, err := server.handleSessionResource(ctx, makeReadResourceRequest("stitch://sessions/s1"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, `"id": "s1"`)
		assert.Contains(t, result.Contents[0].Text, `"next_segment_index": 3`)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)
	})

	t.Run("missing session is not found", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{})

		_, err := server.handleSessionResource(ctx, makeReadResourceRequest("stitch://sessions/s1"))

		require.Error(t, err)
	})

	t.Run("invalid URI is not found", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{session: &domain.Session{ID: "s1"}})

		_, err := server.handleSessionResource(ctx, makeReadResourceRequest("stitch://invalid/uri"))

		require.Error(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{err: errors.New("database error")})

		_, err := server.handleSessionResource(ctx, makeReadResourceRequest("stitch://sessions/s1"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting session")
	})
}

func TestServer_handleSummaryResource(t *testing.T) {
	ctx := context.Background()

	t.Run("not finalized", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{session: &domain.Session{ID: "s1"}})

		_, err := server.handleSummaryResource(ctx, makeReadResourceRequest("stitch://sessions/s1/summary"))

		require.Error(t, err)
	})

	t.Run("returns summary", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{
			session: &domain.Session{ID: "s1", FinalSummaryKey: "sessions/s1/final/summary.json"},
			objects: map[string][]byte{"sessions/s1/final/summary.json": []byte(`{"session_id":"s1","segments":[]}`)},
		})

		result, err := server.handleSummaryResource(ctx, makeReadResourceRequest("stitch://sessions/s1/summary"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.JSONEq(t, `{"session_id":"s1","segments":[]}`, result.Contents[0].Text)
	})
}
