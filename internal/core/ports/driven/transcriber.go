package driven

import "context"

// SubmitRequest describes one chunk handed to the remote transcriber.
type SubmitRequest struct {
	SessionID string
	Seq       int

	// AudioURL is a presigned URL the worker downloads the audio from.
	AudioURL string

	// WebhookURL receives status callbacks. It carries sessionId, seq,
	// startMs and endMs as query parameters.
	WebhookURL string
}

// RemoteTranscriber submits audio to an asynchronous transcription worker.
type RemoteTranscriber interface {
	// Submit queues the chunk remotely and returns the remote job ID.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
}
