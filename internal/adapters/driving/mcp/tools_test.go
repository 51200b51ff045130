package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

func newTestServer(t *testing.T, q *mockQueryService) *Server {
	t.Helper()
	server, err := NewServer(&Ports{Query: q})
	require.NoError(t, err)
	return server
}

func TestServer_handleProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("returns rollup", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{
			progress: &domain.Progress{
				SessionID: "s1", Status: "TRANSCRIBING",
				Total: 4, Succeeded: 2, Failed: 1, Pending: 1, Percent: 75, Segments: 1,
			},
		})

		_, output, err := server.handleProgress(ctx, nil, SessionInput{SessionID: "s1"})

		require.NoError(t, err)
		assert.Equal(t, "s1", output.SessionID)
		assert.Equal(t, 4, output.Total)
		assert.Equal(t, 75, output.Percent)
		assert.Equal(t, "TRANSCRIBING", output.Status)
	})

	t.Run("returns error on failure", func(t *testing.T) {
		server := newTestServer(t, &mockQueryService{err: errors.New("store down")})

		_, _, err := server.handleProgress(ctx, nil, SessionInput{SessionID: "s1"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "store down")
	})
}

func TestServer_handleChunks(t *testing.T) {
	server := newTestServer(t, &mockQueryService{
		chunks: []domain.Chunk{
			{Seq: 0, Status: domain.ChunkSucceeded, StartMs: 0, EndMs: 10000, Attempts: 1},
			{Seq: 1, Status: domain.ChunkFailed, Attempts: 2, ErrorCode: "SUBMIT_FAILED", ErrorMessage: "boom"},
		},
	})

	_, output, err := server.handleChunks(context.Background(), nil, SessionInput{SessionID: "s1"})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Count)
	assert.Equal(t, "SUCCEEDED", output.Chunks[0].Status)
	assert.Equal(t, int64(10000), output.Chunks[0].EndMs)
	assert.Equal(t, "SUBMIT_FAILED", output.Chunks[1].ErrorCode)
	assert.Equal(t, "boom", output.Chunks[1].Error)
}

func TestServer_handleSegments(t *testing.T) {
	server := newTestServer(t, &mockQueryService{
		segments: []domain.Segment{
			{Index: 0, Status: domain.SegmentSucceeded, TokenCount: 3000, SummaryKey: "k0"},
			{Index: 1, Status: domain.SegmentFailed, TokenCount: 3100, ErrorMessage: "malformed"},
		},
	})

	_, output, err := server.handleSegments(context.Background(), nil, SessionInput{SessionID: "s1"})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Count)
	assert.True(t, output.Segments[0].HasSummary)
	assert.False(t, output.Segments[1].HasSummary)
	assert.Equal(t, "malformed", output.Segments[1].Error)
}

func TestServer_handleSegmentSummary(t *testing.T) {
	ctx := context.Background()
	q := &mockQueryService{
		segments: []domain.Segment{
			{Index: 0, Status: domain.SegmentSucceeded, SummaryKey: "sessions/s1/segments/segment-0-summary.json"},
			{Index: 1, Status: domain.SegmentSummarizing},
		},
		objects: map[string][]byte{
			"sessions/s1/segments/segment-0-summary.json": []byte(`{"summary":"intro"}`),
		},
	}
	server := newTestServer(t, q)

	t.Run("returns stored summary", func(t *testing.T) {
		_, output, err := server.handleSegmentSummary(ctx, nil, SegmentInput{SessionID: "s1", Index: 0})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Index)
		assert.JSONEq(t, `{"summary":"intro"}`, output.Summary)
	})

	t.Run("segment without summary", func(t *testing.T) {
		_, _, err := server.handleSegmentSummary(ctx, nil, SegmentInput{SessionID: "s1", Index: 1})

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown segment", func(t *testing.T) {
		_, _, err := server.handleSegmentSummary(ctx, nil, SegmentInput{SessionID: "s1", Index: 9})

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
