package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/stitch/internal/core/domain"
)

func newFinalizerFixture(t *testing.T, threshold int) (*fixture, *mockFinalizer, *Finalizer) {
	t.Helper()
	f := newFixture(t, threshold)
	fin := &mockFinalizer{}
	return f, fin, NewFinalizer(f.orch, fin, FinalizerConfig{Timeout: time.Second, PresignTTL: time.Minute})
}

func int64p(v int64) *int64 { return &v }

func TestFinalize_WithRollingText(t *testing.T) {
	f, fin, finalizer := newFinalizerFixture(t, 40)
	ctx := context.Background()

	// Segment 0 is cut by the merge path, the rest stays rolling.
	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 0, oneWord(strings.Repeat("a", 200), 0, 5), 0))
	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 1, oneWord("tail words", 0, 1), 5000))
	require.Equal(t, 1, f.session(t, "s1").NextSegmentIndex)

	err := finalizer.Finalize(ctx, "s1", domain.BusinessIDs{PatientID: int64p(7)})
	require.NoError(t, err)

	segs := f.segments(t, "s1")
	require.Len(t, segs, 2)
	assert.Equal(t, 1, segs[1].Index)
	assert.Equal(t, domain.SegmentSucceeded, segs[1].Status)

	s := f.session(t, "s1")
	assert.Equal(t, domain.SessionComplete, s.Status)
	assert.True(t, s.EndRequested)
	assert.Equal(t, 2, s.NextSegmentIndex)
	assert.Empty(t, s.RollingText)
	assert.Equal(t, domain.FinalSummaryKey("s1"), s.FinalSummaryKey)
	assert.Equal(t, domain.FinalResultKey("s1"), s.FinalResultKey)
	require.NotNil(t, s.PatientID)
	assert.Equal(t, int64(7), *s.PatientID)

	raw, err := f.objects.Get(ctx, domain.FinalSummaryKey("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"session_id": "s1",
		"segments": [
			{"index": 0, "summary": {"summary": "segment 0"}},
			{"index": 1, "summary": {"summary": "segment 1"}}
		]
	}`, string(raw))

	require.Len(t, fin.calls, 1)
	call := fin.calls[0]
	assert.Equal(t, "s1", call.SessionID)
	assert.Equal(t, domain.FinalSummaryKey("s1"), call.SummaryKey)
	assert.Contains(t, call.SummaryURL, "final/summary.json")
	require.NotNil(t, call.BusinessIDs.PatientID)
	assert.Equal(t, int64(7), *call.BusinessIDs.PatientID)

	result, err := f.objects.Get(ctx, domain.FinalResultKey("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(result))
}

func TestFinalize_EmptyRollingTextAddsNoSegment(t *testing.T) {
	f, fin, finalizer := newFinalizerFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 0, oneWord("cut", 0, 1), 0))
	require.Len(t, f.segments(t, "s1"), 1)
	callsBefore := len(f.summarizer.Calls())

	require.NoError(t, finalizer.Finalize(ctx, "s1", domain.BusinessIDs{}))

	assert.Len(t, f.segments(t, "s1"), 1)
	assert.Equal(t, 1, f.session(t, "s1").NextSegmentIndex)
	assert.Len(t, f.summarizer.Calls(), callsBefore)
	assert.Len(t, fin.calls, 1)
}

func TestFinalize_MissingSession(t *testing.T) {
	_, fin, finalizer := newFinalizerFixture(t, 10)

	err := finalizer.Finalize(context.Background(), "ghost", domain.BusinessIDs{})

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, fin.calls)
}

func TestFinalize_SkipsSegmentsWithoutSummary(t *testing.T) {
	f, _, finalizer := newFinalizerFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 0, oneWord("first", 0, 1), 0))
	f.summarizer.set(json.RawMessage(`oops`), nil)
	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 1, oneWord("second", 0, 1), 1000))
	f.summarizer.set(nil, nil)

	require.NoError(t, finalizer.Finalize(ctx, "s1", domain.BusinessIDs{}))

	raw, err := f.objects.Get(ctx, domain.FinalSummaryKey("s1"))
	require.NoError(t, err)
	var consolidated ConsolidatedSummary
	require.NoError(t, json.Unmarshal(raw, &consolidated))
	require.Len(t, consolidated.Segments, 1)
	assert.Equal(t, 0, consolidated.Segments[0].Index)
}

func TestFinalize_NoSegmentsAtAll(t *testing.T) {
	f, fin, finalizer := newFinalizerFixture(t, 10)
	ctx := context.Background()
	_, _, err := f.store.CreateSessionIfAbsent(ctx, domain.NewSession("s1", time.Now()))
	require.NoError(t, err)

	require.NoError(t, finalizer.Finalize(ctx, "s1", domain.BusinessIDs{}))

	raw, err := f.objects.Get(ctx, domain.FinalSummaryKey("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s1","segments":[]}`, string(raw))
	assert.Len(t, fin.calls, 1)
}

func TestFinalize_SummarizeFailureLeavesFinalizing(t *testing.T) {
	f, fin, finalizer := newFinalizerFixture(t, 1000)
	ctx := context.Background()
	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 0, oneWord("pending text", 0, 1), 0))
	f.summarizer.set(nil, errBoom)

	err := finalizer.Finalize(ctx, "s1", domain.BusinessIDs{})

	require.ErrorIs(t, err, errBoom)
	s := f.session(t, "s1")
	assert.Equal(t, domain.SessionFinalizing, s.Status)
	assert.Empty(t, s.RollingText)
	assert.Empty(t, fin.calls)

	// A second finalize does not cut again and completes.
	f.summarizer.set(nil, nil)
	require.NoError(t, finalizer.Finalize(ctx, "s1", domain.BusinessIDs{}))
	assert.Len(t, f.segments(t, "s1"), 1)
	assert.Equal(t, domain.SessionComplete, f.session(t, "s1").Status)
}

func TestFinalize_FinalizerError(t *testing.T) {
	f, fin, finalizer := newFinalizerFixture(t, 1000)
	ctx := context.Background()
	_, _, err := f.store.CreateSessionIfAbsent(ctx, domain.NewSession("s1", time.Now()))
	require.NoError(t, err)
	fin.err = errBoom

	err = finalizer.Finalize(ctx, "s1", domain.BusinessIDs{})

	require.ErrorIs(t, err, errBoom)
	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, domain.StageFinalize, stageErr.Stage)
	assert.Equal(t, domain.SessionFinalizing, f.session(t, "s1").Status)
}

func TestFinalize_MalformedResultNotStored(t *testing.T) {
	f, fin, finalizer := newFinalizerFixture(t, 1000)
	ctx := context.Background()
	_, _, err := f.store.CreateSessionIfAbsent(ctx, domain.NewSession("s1", time.Now()))
	require.NoError(t, err)
	fin.result = json.RawMessage(`<html>`)

	require.NoError(t, finalizer.Finalize(ctx, "s1", domain.BusinessIDs{}))

	s := f.session(t, "s1")
	assert.Equal(t, domain.SessionComplete, s.Status)
	assert.Empty(t, s.FinalResultKey)
	_, ok := f.objects.Object(domain.FinalResultKey("s1"))
	assert.False(t, ok)
}

func TestFinalize_CommitFailureLeavesSessionOpen(t *testing.T) {
	store := &failingStore{Store: memory.NewStore()}
	objects := memory.NewObjectStore()
	orch := NewOrchestrator(store, objects, &mockSummarizer{}, OrchestratorConfig{
		Epsilon:        domain.DefaultEpsilonSeconds,
		TokenThreshold: 1000,
		PresignTTL:     time.Minute,
	})
	fin := &mockFinalizer{}
	finalizer := NewFinalizer(orch, fin, FinalizerConfig{PresignTTL: time.Minute})
	ctx := context.Background()
	require.NoError(t, orch.HandleChunkSuccess(ctx, "s1", 0, oneWord("pending", 0, 1), 0))

	store.failCommits = 1
	err := finalizer.Finalize(ctx, "s1", domain.BusinessIDs{})

	require.ErrorIs(t, err, errBoom)
	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, domain.StageSaveSession, stageErr.Stage)
	s, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionTranscribing, s.Status)
	assert.Equal(t, "pending", s.RollingText)
	segs, err := store.ListSegments(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, segs)
	assert.Empty(t, fin.calls)

	require.NoError(t, finalizer.Finalize(ctx, "s1", domain.BusinessIDs{}))
	s, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionComplete, s.Status)
	assert.Equal(t, 1, s.NextSegmentIndex)
	segs, err = store.ListSegments(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 0, segs[0].Index)
}

func TestFinalize_LateChunkNotMerged(t *testing.T) {
	f, _, finalizer := newFinalizerFixture(t, 1000)
	ctx := context.Background()
	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 0, oneWord("early", 0, 1), 0))
	require.NoError(t, finalizer.Finalize(ctx, "s1", domain.BusinessIDs{}))

	require.NoError(t, f.orch.HandleChunkSuccess(ctx, "s1", 1, oneWord("late", 0, 1), 1000))

	assert.True(t, f.chunk(t, "s1", 1).IsTranscribed())
	s := f.session(t, "s1")
	assert.Empty(t, s.RollingText)
	assert.Equal(t, domain.SessionComplete, s.Status)
	assert.Len(t, f.segments(t, "s1"), 1)
}
