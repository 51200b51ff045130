package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/merge"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/core/ports/driving"
	"github.com/custodia-labs/stitch/internal/core/segmentation"
	"github.com/custodia-labs/stitch/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.Orchestrator = (*Orchestrator)(nil)

// OrchestratorConfig tunes the merge path.
type OrchestratorConfig struct {
	// Epsilon is the merge watermark tolerance in seconds.
	Epsilon float64

	// TokenThreshold is the rolling token count that triggers a segment cut.
	TokenThreshold int

	// SummarizeTimeout bounds each summarizer call. Zero means no timeout.
	SummarizeTimeout time.Duration

	// PresignTTL is the lifetime of URLs handed to the summarizer.
	PresignTTL time.Duration
}

// Orchestrator owns every session's rolling transcript state. It merges
// finished chunk transcripts, cuts segments and dispatches summarization.
type Orchestrator struct {
	store      driven.EntityStore
	objects    driven.ObjectStore
	summarizer driven.Summarizer

	merger *merge.Engine
	policy segmentation.Policy
	locks  *KeyedMutex

	summarizeTimeout time.Duration
	presignTTL       time.Duration
	now              func() time.Time
}

// NewOrchestrator creates a session orchestrator.
func NewOrchestrator(
	store driven.EntityStore,
	objects driven.ObjectStore,
	summarizer driven.Summarizer,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		store:            store,
		objects:          objects,
		summarizer:       summarizer,
		merger:           merge.NewEngine(cfg.Epsilon),
		policy:           segmentation.NewPolicy(cfg.TokenThreshold),
		locks:            NewKeyedMutex(),
		summarizeTimeout: cfg.SummarizeTimeout,
		presignTTL:       cfg.PresignTTL,
		now:              time.Now,
	}
}

// SetChunkStatus applies status and extra to a chunk without consulting the
// transition graph. A missing chunk is created.
func (o *Orchestrator) SetChunkStatus(
	ctx context.Context,
	sessionID string,
	seq int,
	status domain.ChunkStatus,
	extra *domain.ChunkStatusExtra,
) error {
	_, _, err := o.updateChunk(ctx, sessionID, seq, func(c *domain.Chunk) bool {
		c.Status = status
		extra.Apply(c)
		return true
	})
	if err != nil {
		return domain.ChunkStageError(sessionID, seq, domain.StageMarkChunk, err)
	}
	return nil
}

// TransitionChunk moves a chunk to status only when the lifecycle allows it.
// It reports whether the change was applied; a refused regression is not an error.
func (o *Orchestrator) TransitionChunk(
	ctx context.Context,
	sessionID string,
	seq int,
	status domain.ChunkStatus,
	extra *domain.ChunkStatusExtra,
) (bool, error) {
	_, applied, err := o.updateChunk(ctx, sessionID, seq, func(c *domain.Chunk) bool {
		if c.Status != "" && !c.Status.CanTransitionTo(status) {
			return false
		}
		c.Status = status
		extra.Apply(c)
		return true
	})
	if err != nil {
		return false, domain.ChunkStageError(sessionID, seq, domain.StageMarkChunk, err)
	}
	return applied, nil
}

// updateChunk runs a read-modify-write on one chunk inside the session's
// critical section. fn reports whether it changed the chunk; unchanged
// chunks are not written. fn is called again on a fresh copy when another
// writer got there first.
func (o *Orchestrator) updateChunk(
	ctx context.Context,
	sessionID string,
	seq int,
	fn func(*domain.Chunk) bool,
) (*domain.Chunk, bool, error) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	var (
		chunk   *domain.Chunk
		applied bool
	)
	err := retryOnConflict(ctx, func() error {
		var err error
		chunk, err = o.loadChunk(ctx, sessionID, seq)
		if err != nil {
			return err
		}
		applied = fn(chunk)
		if !applied {
			return nil
		}
		chunk.UpdatedAt = o.now()
		if err := o.store.SaveChunk(ctx, chunk); err != nil {
			return fmt.Errorf("save chunk: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return chunk, applied, nil
}

func (o *Orchestrator) loadChunk(ctx context.Context, sessionID string, seq int) (*domain.Chunk, error) {
	chunk, err := o.store.GetChunk(ctx, sessionID, seq)
	if err == nil {
		return chunk, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	now := o.now()
	return &domain.Chunk{SessionID: sessionID, Seq: seq, CreatedAt: now, UpdatedAt: now}, nil
}

// HandleChunkSuccess records a finished transcript and folds it into the
// session's rolling text. The chunk's SUCCEEDED record, the merged session
// and any cut segment are written in one commit, so a failed commit leaves
// the chunk unrecorded and a redelivery merges it again. Summarization of a
// cut segment runs after the session lock is released.
func (o *Orchestrator) HandleChunkSuccess(
	ctx context.Context,
	sessionID string,
	seq int,
	result *domain.TranscriptionResult,
	chunkStartMs int64,
) error {
	log := logger.With("session", sessionID, "seq", seq)
	if result == nil {
		result = &domain.TranscriptionResult{}
	}

	unlock := o.locks.Lock(sessionID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	var (
		segment *domain.Segment
		cut     *segmentation.Cut
		stored  bool
	)
	err := retryOnConflict(ctx, func() error {
		segment, cut = nil, nil

		chunk, err := o.loadChunk(ctx, sessionID, seq)
		if err != nil {
			return &stagedError{stage: domain.StageMarkChunk, err: err}
		}
		if chunk.IsTranscribed() {
			log.Debug("transcript already recorded, skipping")
			return nil
		}
		if !stored {
			if err := o.putTranscript(ctx, sessionID, seq, result); err != nil {
				return &stagedError{stage: domain.StagePersistTranscript, err: err}
			}
			stored = true
		}
		markTranscribed(chunk, result, chunkStartMs, o.now())

		session, err := o.loadOrCreateSession(ctx, sessionID)
		if err != nil {
			return &stagedError{stage: domain.StageLoadSession, err: err}
		}
		if !session.AcceptsChunks() {
			log.Warn("session already finalizing, transcript recorded but not merged")
			if err := o.store.SaveChunk(ctx, chunk); err != nil {
				return &stagedError{stage: domain.StageMarkChunk, err: err}
			}
			return nil
		}

		merged := o.merger.Merge(result, chunkStartMs, session.LastKeptEndSeconds)
		session.LastKeptEndSeconds = merged.Watermark

		state, next := o.policy.Apply(segmentation.StateOf(session), merged.Text)
		state.ApplyTo(session)
		if session.Status == domain.SessionRecording || session.Status == "" {
			session.Status = domain.SessionTranscribing
		}

		seg, err := o.commit(ctx, session, next, chunk)
		if err != nil {
			return err
		}
		log.Debug("merged %d words, dropped %d, watermark %.3f", merged.Kept, merged.Dropped, merged.Watermark)
		segment, cut = seg, next
		return nil
	})
	if err != nil {
		return domain.ChunkStageError(sessionID, seq, stageOf(err), err)
	}

	unlock()
	locked = false

	if segment == nil {
		return nil
	}
	log.Info("cut segment %d (%d tokens)", cut.Index, cut.TokenCount)
	return o.summarizeCut(ctx, segment, cut.Text)
}

// putTranscript stores the raw result. The key is fixed per chunk, so a
// replay overwrites it with the same content.
func (o *Orchestrator) putTranscript(ctx context.Context, sessionID string, seq int, result *domain.TranscriptionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return o.objects.Put(ctx, domain.TranscriptKey(sessionID, seq), raw, domain.ContentTypeJSON)
}

func markTranscribed(chunk *domain.Chunk, result *domain.TranscriptionResult, chunkStartMs int64, now time.Time) {
	chunk.Status = domain.ChunkSucceeded
	chunk.TranscriptKey = domain.TranscriptKey(chunk.SessionID, chunk.Seq)
	chunk.Language = result.DetectedLanguage
	chunk.ErrorCode = ""
	chunk.ErrorMessage = ""
	if chunk.StartMs == 0 {
		chunk.StartMs = chunkStartMs
	}
	chunk.UpdatedAt = now
}

type stagedError struct {
	stage string
	err   error
}

func (e *stagedError) Error() string { return e.err.Error() }
func (e *stagedError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stagedError
	if errors.As(err, &se) {
		return se.stage
	}
	if errors.Is(err, domain.ErrAlreadyExists) {
		return domain.StageCreateSegment
	}
	return domain.StageSaveSession
}

// commit writes the session together with the segment cut describes and
// the chunk that produced it, either of which may be nil, in one atomic
// store operation. It is the single segment-creation primitive shared by
// the merge path and finalize. Callers hold the session lock.
func (o *Orchestrator) commit(
	ctx context.Context,
	session *domain.Session,
	cut *segmentation.Cut,
	chunk *domain.Chunk,
) (*domain.Segment, error) {
	now := o.now()
	session.UpdatedAt = now

	var segment *domain.Segment
	if cut != nil {
		segment = &domain.Segment{
			SessionID:  session.ID,
			Index:      cut.Index,
			Status:     domain.SegmentPending,
			TokenCount: cut.TokenCount,
			InputKey:   domain.SegmentInputKey(session.ID, cut.Index),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	err := o.store.CommitSession(ctx, driven.SessionCommit{
		Session: session,
		Segment: segment,
		Chunk:   chunk,
	})
	if err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return segment, nil
}

func (o *Orchestrator) loadOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	session, _, err = o.store.CreateSessionIfAbsent(ctx, domain.NewSession(sessionID, o.now()))
	return session, err
}

// summarizeCut stores a freshly cut segment's input text and summarizes it.
func (o *Orchestrator) summarizeCut(ctx context.Context, segment *domain.Segment, text string) error {
	if err := o.objects.Put(ctx, segment.InputKey, []byte(text), domain.ContentTypeText); err != nil {
		return domain.SegmentStageError(segment.SessionID, segment.Index, domain.StagePersistInput, err)
	}
	return o.summarizeSegment(ctx, segment, text)
}

// RetrySegmentSummary summarizes a segment again from its stored input text.
// The summary object is overwritten.
func (o *Orchestrator) RetrySegmentSummary(ctx context.Context, sessionID string, index int) error {
	segment, err := o.store.GetSegment(ctx, sessionID, index)
	if err != nil {
		return fmt.Errorf("get segment: %w", err)
	}
	inputKey := segment.InputKey
	if inputKey == "" {
		inputKey = domain.SegmentInputKey(sessionID, index)
		segment.InputKey = inputKey
	}
	text, err := o.objects.Get(ctx, inputKey)
	if err != nil {
		return domain.SegmentStageError(sessionID, index, domain.StagePersistInput, err)
	}
	return o.summarizeSegment(ctx, segment, string(text))
}

// summarizeSegment runs the summarizer for one segment and records the
// outcome. A transport failure marks the segment FAILED and is returned; a
// result that is not JSON marks it FAILED and is only logged.
func (o *Orchestrator) summarizeSegment(ctx context.Context, segment *domain.Segment, text string) error {
	sessionID, index := segment.SessionID, segment.Index
	log := logger.With("session", sessionID, "segment", index)

	if err := o.saveSegmentStatus(ctx, segment, domain.SegmentSummarizing, ""); err != nil {
		return domain.SegmentStageError(sessionID, index, domain.StageSummarize, err)
	}

	req := driven.SummarizeRequest{
		SessionID:    sessionID,
		SegmentIndex: index,
		InputKey:     segment.InputKey,
		Text:         text,
	}
	if url, err := o.objects.PresignedGetURL(ctx, segment.InputKey, o.presignTTL); err != nil {
		log.Warn("presign segment input: %v", err)
	} else {
		req.InputURL = url
	}

	callCtx, cancel := withTimeout(ctx, o.summarizeTimeout)
	summary, err := o.summarizer.Summarize(callCtx, req)
	cancel()
	if err != nil {
		if saveErr := o.saveSegmentStatus(ctx, segment, domain.SegmentFailed, err.Error()); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
		return domain.SegmentStageError(sessionID, index, domain.StageSummarize, err)
	}
	if !json.Valid(summary) {
		log.Warn("summarizer returned malformed JSON, marking segment failed")
		msg := fmt.Sprintf("%v: summary is not valid JSON", domain.ErrMalformedPayload)
		if err := o.saveSegmentStatus(ctx, segment, domain.SegmentFailed, msg); err != nil {
			return domain.SegmentStageError(sessionID, index, domain.StageSummarize, err)
		}
		return nil
	}

	summaryKey := domain.SegmentSummaryKey(sessionID, index)
	if err := o.objects.Put(ctx, summaryKey, summary, domain.ContentTypeJSON); err != nil {
		if saveErr := o.saveSegmentStatus(ctx, segment, domain.SegmentFailed, err.Error()); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
		return domain.SegmentStageError(sessionID, index, domain.StageSummarize, err)
	}

	segment.SummaryKey = summaryKey
	if err := o.saveSegmentStatus(ctx, segment, domain.SegmentSucceeded, ""); err != nil {
		return domain.SegmentStageError(sessionID, index, domain.StageSummarize, err)
	}
	log.Info("segment summarized")
	return nil
}

func (o *Orchestrator) saveSegmentStatus(ctx context.Context, segment *domain.Segment, status domain.SegmentStatus, msg string) error {
	segment.Status = status
	segment.ErrorMessage = msg
	segment.UpdatedAt = o.now()
	return o.store.SaveSegment(ctx, *segment)
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
