package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/logger"
)

// CallbackPath is the route the remote transcriber posts status updates to.
const CallbackPath = "/callbacks/transcription"

// Webhook query parameters.
const (
	ParamSessionID = "sessionId"
	ParamSeq       = "seq"
	ParamStartMs   = "startMs"
	ParamEndMs     = "endMs"
)

// WorkerConfig configures remote submission.
type WorkerConfig struct {
	// PublicBaseURL is where the remote transcriber can reach our callback route.
	PublicBaseURL string

	// SubmitTimeout bounds each submission. Zero means no timeout.
	SubmitTimeout time.Duration

	// PresignTTL is the lifetime of the audio URL handed to the transcriber.
	PresignTTL time.Duration
}

// SubmissionWorker consumes chunk jobs and submits them to the remote
// transcriber.
type SubmissionWorker struct {
	orch        *Orchestrator
	objects     driven.ObjectStore
	queue       driven.WorkQueue
	transcriber driven.RemoteTranscriber
	cfg         WorkerConfig
}

// NewSubmissionWorker creates a submission worker.
func NewSubmissionWorker(
	orch *Orchestrator,
	objects driven.ObjectStore,
	queue driven.WorkQueue,
	transcriber driven.RemoteTranscriber,
	cfg WorkerConfig,
) *SubmissionWorker {
	return &SubmissionWorker{
		orch:        orch,
		objects:     objects,
		queue:       queue,
		transcriber: transcriber,
		cfg:         cfg,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *SubmissionWorker) Run(ctx context.Context) error {
	logger.Info("submission worker started")
	err := w.queue.Consume(ctx, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle submits one job. Jobs for chunks already submitted or finished are
// skipped, which makes redelivery harmless.
func (w *SubmissionWorker) Handle(ctx context.Context, job driven.ChunkJob) error {
	log := logger.With("session", job.SessionID, "seq", job.Seq)

	chunk, err := w.orch.store.GetChunk(ctx, job.SessionID, job.Seq)
	if err != nil {
		return domain.ChunkStageError(job.SessionID, job.Seq, domain.StageSubmit, fmt.Errorf("get chunk: %w", err))
	}
	if !awaitingSubmission(chunk.Status) {
		log.Debug("chunk is %s, skipping submission", chunk.Status)
		return nil
	}

	audioKey := chunk.AudioKey
	if audioKey == "" {
		audioKey = job.AudioKey
	}
	audioURL, err := w.objects.PresignedGetURL(ctx, audioKey, w.cfg.PresignTTL)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("presign audio: %w", err))
	}

	req := driven.SubmitRequest{
		SessionID:  job.SessionID,
		Seq:        job.Seq,
		AudioURL:   audioURL,
		WebhookURL: WebhookURL(w.cfg.PublicBaseURL, domain.CallbackRef{SessionID: job.SessionID, Seq: job.Seq, StartMs: chunk.StartMs, EndMs: chunk.EndMs}),
	}

	callCtx, cancel := withTimeout(ctx, w.cfg.SubmitTimeout)
	remoteID, err := w.transcriber.Submit(callCtx, req)
	cancel()
	if err != nil {
		return w.fail(ctx, job, err)
	}

	_, _, err = w.orch.updateChunk(ctx, job.SessionID, job.Seq, func(c *domain.Chunk) bool {
		changed := false
		if c.RemoteID == "" || c.Status.CanTransitionTo(domain.ChunkQueuedRemote) {
			c.RemoteID = remoteID
			changed = true
		}
		if c.Status.CanTransitionTo(domain.ChunkQueuedRemote) {
			c.Status = domain.ChunkQueuedRemote
		}
		return changed
	})
	if err != nil {
		return domain.ChunkStageError(job.SessionID, job.Seq, domain.StageMarkChunk, err)
	}
	log.Info("submitted as %s", remoteID)
	return nil
}

func (w *SubmissionWorker) fail(ctx context.Context, job driven.ChunkJob, cause error) error {
	extra := domain.ChunkError("SUBMIT_FAILED", cause.Error())
	if _, err := w.orch.TransitionChunk(ctx, job.SessionID, job.Seq, domain.ChunkFailed, extra); err != nil {
		cause = errors.Join(cause, err)
	}
	return domain.ChunkStageError(job.SessionID, job.Seq, domain.StageSubmit, cause)
}

// awaitingSubmission reports whether a chunk with status s still needs to be
// sent to the remote transcriber.
func awaitingSubmission(s domain.ChunkStatus) bool {
	switch s {
	case domain.ChunkUploaded, domain.ChunkRetrying, domain.ChunkEnqueued:
		return true
	}
	return false
}

// WebhookURL builds the callback URL that correlates a remote job with its chunk.
func WebhookURL(baseURL string, ref domain.CallbackRef) string {
	q := url.Values{}
	q.Set(ParamSessionID, ref.SessionID)
	q.Set(ParamSeq, strconv.Itoa(ref.Seq))
	q.Set(ParamStartMs, strconv.FormatInt(ref.StartMs, 10))
	q.Set(ParamEndMs, strconv.FormatInt(ref.EndMs, 10))
	return strings.TrimRight(baseURL, "/") + CallbackPath + "?" + q.Encode()
}

// ParseCallbackRef decodes the correlation parameters of a webhook URL.
func ParseCallbackRef(q url.Values) (domain.CallbackRef, error) {
	ref := domain.CallbackRef{SessionID: q.Get(ParamSessionID)}
	if ref.SessionID == "" {
		return ref, fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, ParamSessionID)
	}
	seq, err := strconv.Atoi(q.Get(ParamSeq))
	if err != nil || seq < 0 {
		return ref, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidInput, ParamSeq, q.Get(ParamSeq))
	}
	ref.Seq = seq
	if ref.StartMs, err = parseOptionalInt(q.Get(ParamStartMs)); err != nil {
		return ref, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, ParamStartMs)
	}
	if ref.EndMs, err = parseOptionalInt(q.Get(ParamEndMs)); err != nil {
		return ref, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, ParamEndMs)
	}
	return ref, nil
}

func parseOptionalInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
