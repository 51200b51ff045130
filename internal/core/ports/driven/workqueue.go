package driven

import "context"

// ChunkJob asks the submission worker to send one chunk for transcription.
type ChunkJob struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	AudioKey  string `json:"audio_key"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	Attempt   int    `json:"attempt"`
}

// JobHandler processes one dequeued job.
type JobHandler func(ctx context.Context, job ChunkJob) error

// WorkQueue decouples upload from remote submission.
//
// Delivery is at-least-once. A handler error is logged and the job is
// acknowledged without redelivery; dead-lettering is left to the backend.
type WorkQueue interface {
	// Enqueue publishes a job.
	Enqueue(ctx context.Context, job ChunkJob) error

	// Consume delivers jobs to handler until ctx is cancelled or the queue is closed.
	Consume(ctx context.Context, handler JobHandler) error

	// Close releases resources.
	Close() error
}
