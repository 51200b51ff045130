package driving

import (
	"context"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// UploadRequest describes one audio chunk received from a client.
type UploadRequest struct {
	SessionID string
	Seq       int
	StartMs   int64
	EndMs     int64

	// Ext is the audio file extension, without the dot.
	Ext string

	Audio       []byte
	ContentType string
}

// Dispatcher accepts chunk uploads and queues them for transcription.
type Dispatcher interface {
	// Upload stores the audio, records the chunk and enqueues it.
	Upload(ctx context.Context, req UploadRequest) (*domain.Chunk, error)

	// RetryChunk re-enqueues a FAILED, CANCELLED or TIMED_OUT chunk.
	// Returns domain.ErrNotRetryable for any other state.
	RetryChunk(ctx context.Context, sessionID string, seq int) (*domain.Chunk, error)
}

// Orchestrator owns the per-session merge and segmentation state.
type Orchestrator interface {
	// SetChunkStatus applies status and optional metadata to a chunk.
	SetChunkStatus(ctx context.Context, sessionID string, seq int, status domain.ChunkStatus, extra *domain.ChunkStatusExtra) error

	// TransitionChunk applies status only if the chunk lifecycle allows the
	// move, and reports whether it did.
	TransitionChunk(ctx context.Context, sessionID string, seq int, status domain.ChunkStatus, extra *domain.ChunkStatusExtra) (bool, error)

	// HandleChunkSuccess records a finished transcription and merges it into
	// the session. Repeated calls for an already recorded chunk are no-ops.
	HandleChunkSuccess(ctx context.Context, sessionID string, seq int, result *domain.TranscriptionResult, chunkStartMs int64) error

	// RetrySegmentSummary summarizes a segment again from its stored input text.
	RetrySegmentSummary(ctx context.Context, sessionID string, index int) error
}

// CallbackIngestor processes status callbacks from the remote transcriber.
type CallbackIngestor interface {
	// Handle maps the remote status onto the chunk lifecycle. Unknown
	// statuses and regressions are acknowledged without change.
	Handle(ctx context.Context, ref domain.CallbackRef, payload domain.CallbackPayload) error
}

// SessionFinalizer closes a session.
type SessionFinalizer interface {
	// Finalize cuts the remaining text, consolidates all segment summaries
	// and invokes the finalizer function.
	Finalize(ctx context.Context, sessionID string, ids domain.BusinessIDs) error
}
