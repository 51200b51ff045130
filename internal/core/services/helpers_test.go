package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/stitch/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

var errBoom = errors.New("boom")

// ==================== Summarizer / Finalizer mocks ====================

type mockSummarizer struct {
	mu     sync.Mutex
	calls  []driven.SummarizeRequest
	result json.RawMessage
	err    error
}

func (m *mockSummarizer) Summarize(_ context.Context, req driven.SummarizeRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return json.RawMessage(fmt.Sprintf(`{"summary":"segment %d"}`, req.SegmentIndex)), nil
}

func (m *mockSummarizer) Calls() []driven.SummarizeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]driven.SummarizeRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockSummarizer) set(result json.RawMessage, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	m.err = err
}

type mockFinalizer struct {
	mu     sync.Mutex
	calls  []driven.FinalizeRequest
	result json.RawMessage
	err    error
}

func (m *mockFinalizer) Finalize(_ context.Context, req driven.FinalizeRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return json.RawMessage(`{"status":"ok"}`), nil
}

// ==================== Queue / Transcriber mocks ====================

type mockQueue struct {
	mu         sync.Mutex
	jobs       []driven.ChunkJob
	enqueueErr error
	handled    []error
}

func (m *mockQueue) Enqueue(_ context.Context, job driven.ChunkJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.jobs = append(m.jobs, job)
	return nil
}

// Consume drains the queued jobs once and returns.
func (m *mockQueue) Consume(ctx context.Context, handler driven.JobHandler) error {
	m.mu.Lock()
	jobs := m.jobs
	m.jobs = nil
	m.mu.Unlock()
	for _, job := range jobs {
		err := handler(ctx, job)
		m.mu.Lock()
		m.handled = append(m.handled, err)
		m.mu.Unlock()
	}
	return nil
}

func (m *mockQueue) Close() error { return nil }

func (m *mockQueue) Jobs() []driven.ChunkJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]driven.ChunkJob, len(m.jobs))
	copy(out, m.jobs)
	return out
}

type mockTranscriber struct {
	mu       sync.Mutex
	requests []driven.SubmitRequest
	remoteID string
	err      error
}

func (m *mockTranscriber) Submit(_ context.Context, req driven.SubmitRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	if m.remoteID == "" {
		return "remote-1", nil
	}
	return m.remoteID, nil
}

// ==================== Failing stores ====================

// failingObjects wraps the memory object store and fails Put for keys
// containing failPut.
type failingObjects struct {
	*memory.ObjectStore
	failPut string
}

func (f *failingObjects) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if f.failPut != "" && strings.Contains(key, f.failPut) {
		return errBoom
	}
	return f.ObjectStore.Put(ctx, key, data, contentType)
}

// failingStore wraps the memory store and fails selected writes.
type failingStore struct {
	*memory.Store
	failSaveSession bool
	failSaveChunk   bool

	// failCommits fails that many CommitSession calls before letting
	// them through.
	failCommits int
	commits     int

	// afterGetSession runs once, after the first GetSession has read its
	// copy, to let another writer move the stored session on.
	afterGetSession func()
}

func (f *failingStore) SaveSession(ctx context.Context, s *domain.Session) error {
	if f.failSaveSession {
		return errBoom
	}
	return f.Store.SaveSession(ctx, s)
}

func (f *failingStore) SaveChunk(ctx context.Context, c *domain.Chunk) error {
	if f.failSaveChunk {
		return errBoom
	}
	return f.Store.SaveChunk(ctx, c)
}

func (f *failingStore) CommitSession(ctx context.Context, commit driven.SessionCommit) error {
	f.commits++
	if f.failSaveSession || f.failCommits > 0 {
		if f.failCommits > 0 {
			f.failCommits--
		}
		return errBoom
	}
	return f.Store.CommitSession(ctx, commit)
}

func (f *failingStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := f.Store.GetSession(ctx, id)
	if hook := f.afterGetSession; hook != nil {
		f.afterGetSession = nil
		hook()
	}
	return s, err
}

// ==================== Fixtures ====================

type fixture struct {
	store      *memory.Store
	objects    *memory.ObjectStore
	summarizer *mockSummarizer
	orch       *Orchestrator
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.NewStore(),
		objects:    memory.NewObjectStore(),
		summarizer: &mockSummarizer{},
	}
	f.orch = NewOrchestrator(f.store, f.objects, f.summarizer, OrchestratorConfig{
		Epsilon:          domain.DefaultEpsilonSeconds,
		TokenThreshold:   threshold,
		SummarizeTimeout: time.Second,
		PresignTTL:       time.Minute,
	})
	return f
}

func (f *fixture) session(t *testing.T, id string) *domain.Session {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get session %s: %v", id, err)
	}
	return s
}

func (f *fixture) chunk(t *testing.T, sessionID string, seq int) *domain.Chunk {
	t.Helper()
	c, err := f.store.GetChunk(context.Background(), sessionID, seq)
	if err != nil {
		t.Fatalf("get chunk %s/%d: %v", sessionID, seq, err)
	}
	return c
}

func (f *fixture) segments(t *testing.T, sessionID string) []domain.Segment {
	t.Helper()
	segs, err := f.store.ListSegments(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("list segments %s: %v", sessionID, err)
	}
	return segs
}

// oneWord builds a result holding a single word of the given text spanning [start,end].
func oneWord(text string, start, end float64) *domain.TranscriptionResult {
	return &domain.TranscriptionResult{
		Words:            []domain.Word{{Word: text, Start: start, End: end}},
		DetectedLanguage: "en",
	}
}

type transcriberFunc func(ctx context.Context) (string, error)

func (fn transcriberFunc) Submit(ctx context.Context, _ driven.SubmitRequest) (string, error) {
	return fn(ctx)
}

func jobFor(c *domain.Chunk) driven.ChunkJob {
	return driven.ChunkJob{
		SessionID: c.SessionID,
		Seq:       c.Seq,
		AudioKey:  c.AudioKey,
		StartMs:   c.StartMs,
		EndMs:     c.EndMs,
		Attempt:   c.Attempts,
	}
}
