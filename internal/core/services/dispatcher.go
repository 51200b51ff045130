package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/core/ports/driving"
	"github.com/custodia-labs/stitch/internal/logger"
)

// Ensure Dispatcher implements the interface.
var _ driving.Dispatcher = (*Dispatcher)(nil)

// Dispatcher accepts uploaded audio and hands chunks to the work queue.
type Dispatcher struct {
	orch    *Orchestrator
	objects driven.ObjectStore
	queue   driven.WorkQueue
}

// NewDispatcher creates a dispatcher. Chunk status changes go through orch
// so they share the session's critical section with the merge path.
func NewDispatcher(orch *Orchestrator, objects driven.ObjectStore, queue driven.WorkQueue) *Dispatcher {
	return &Dispatcher{orch: orch, objects: objects, queue: queue}
}

func validateUpload(req driving.UploadRequest) error {
	switch {
	case req.SessionID == "":
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	case req.Seq < 0:
		return fmt.Errorf("%w: seq must not be negative", domain.ErrInvalidInput)
	case req.StartMs < 0 || req.EndMs < req.StartMs:
		return fmt.Errorf("%w: invalid time range [%d,%d]", domain.ErrInvalidInput, req.StartMs, req.EndMs)
	case len(req.Audio) == 0:
		return fmt.Errorf("%w: audio is empty", domain.ErrInvalidInput)
	}
	return nil
}

// Upload stores the audio, records the chunk as UPLOADED and enqueues it.
// Re-uploading a chunk that has already been enqueued is acknowledged
// without a second job.
func (d *Dispatcher) Upload(ctx context.Context, req driving.UploadRequest) (*domain.Chunk, error) {
	if err := validateUpload(req); err != nil {
		return nil, err
	}
	log := logger.With("session", req.SessionID, "seq", req.Seq)

	session, created, err := d.orch.store.CreateSessionIfAbsent(ctx, domain.NewSession(req.SessionID, d.orch.now()))
	if err != nil {
		return nil, domain.ChunkStageError(req.SessionID, req.Seq, domain.StageLoadSession, err)
	}
	if created {
		log.Info("session created on first upload")
	}
	if !session.AcceptsChunks() {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionEnded, req.SessionID)
	}

	existing, err := d.orch.store.GetChunk(ctx, req.SessionID, req.Seq)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ChunkStageError(req.SessionID, req.Seq, domain.StageMarkChunk, err)
	}
	if existing != nil && existing.Status != domain.ChunkUploaded {
		log.Debug("duplicate upload ignored, chunk is %s", existing.Status)
		return existing, nil
	}

	audioKey := domain.RawAudioKey(req.SessionID, req.Seq, req.StartMs, req.EndMs, req.Ext)
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := d.objects.Put(ctx, audioKey, req.Audio, contentType); err != nil {
		return nil, domain.ChunkStageError(req.SessionID, req.Seq, domain.StageUpload, err)
	}

	chunk, _, err := d.orch.updateChunk(ctx, req.SessionID, req.Seq, func(c *domain.Chunk) bool {
		c.Status = domain.ChunkUploaded
		c.AudioKey = audioKey
		c.StartMs = req.StartMs
		c.EndMs = req.EndMs
		if c.Attempts == 0 {
			c.Attempts = 1
		}
		return true
	})
	if err != nil {
		return nil, domain.ChunkStageError(req.SessionID, req.Seq, domain.StageMarkChunk, err)
	}

	return d.enqueue(ctx, chunk)
}

// RetryChunk re-enqueues a chunk whose remote attempt failed.
func (d *Dispatcher) RetryChunk(ctx context.Context, sessionID string, seq int) (*domain.Chunk, error) {
	if _, err := d.orch.store.GetChunk(ctx, sessionID, seq); err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}

	chunk, retried, err := d.orch.updateChunk(ctx, sessionID, seq, func(c *domain.Chunk) bool {
		if !c.Status.IsRetryable() {
			return false
		}
		c.Status = domain.ChunkRetrying
		c.Attempts++
		c.ErrorCode = ""
		c.ErrorMessage = ""
		return true
	})
	if err != nil {
		return nil, domain.ChunkStageError(sessionID, seq, domain.StageMarkChunk, err)
	}
	if !retried {
		return nil, fmt.Errorf("%w: chunk %s/%d is %s", domain.ErrNotRetryable, sessionID, seq, chunk.Status)
	}

	logger.With("session", sessionID, "seq", seq).Info("retrying chunk, attempt %d", chunk.Attempts)
	return d.enqueue(ctx, chunk)
}

func (d *Dispatcher) enqueue(ctx context.Context, chunk *domain.Chunk) (*domain.Chunk, error) {
	job := driven.ChunkJob{
		SessionID: chunk.SessionID,
		Seq:       chunk.Seq,
		AudioKey:  chunk.AudioKey,
		StartMs:   chunk.StartMs,
		EndMs:     chunk.EndMs,
		Attempt:   chunk.Attempts,
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return nil, domain.ChunkStageError(chunk.SessionID, chunk.Seq, domain.StageEnqueue, err)
	}

	// The worker may already have moved the chunk on; that is not a failure.
	updated, _, err := d.orch.updateChunk(ctx, chunk.SessionID, chunk.Seq, func(c *domain.Chunk) bool {
		if !c.Status.CanTransitionTo(domain.ChunkEnqueued) {
			return false
		}
		c.Status = domain.ChunkEnqueued
		return true
	})
	if err != nil {
		return nil, domain.ChunkStageError(chunk.SessionID, chunk.Seq, domain.StageMarkChunk, err)
	}
	return updated, nil
}
