package domain

import "strings"

// Word is a single timestamped word reported by the transcriber.
// Times are seconds relative to the start of the chunk's audio.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TextSegment is a transcriber text segment, optionally carrying its own words.
type TextSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// TranscriptionResult is the output of the remote transcriber for one chunk.
// Either Words or Segments (or both) may be populated.
type TranscriptionResult struct {
	Words            []Word        `json:"words,omitempty"`
	Segments         []TextSegment `json:"segments,omitempty"`
	DetectedLanguage string        `json:"detected_language,omitempty"`
	Transcription    string        `json:"transcription,omitempty"`
}

// IsEmpty reports whether the result carries no words and no segments.
func (r *TranscriptionResult) IsEmpty() bool {
	return len(r.Words) == 0 && len(r.Segments) == 0
}

// RemoteStatus is a status string reported by the remote transcriber.
type RemoteStatus string

// Remote statuses understood by the callback ingestor.
const (
	RemoteInQueue    RemoteStatus = "IN_QUEUE"
	RemoteInProgress RemoteStatus = "IN_PROGRESS"
	RemoteFailed     RemoteStatus = "FAILED"
	RemoteCancelled  RemoteStatus = "CANCELLED"
	RemoteTimedOut   RemoteStatus = "TIMED_OUT"
	RemoteSucceeded  RemoteStatus = "SUCCEEDED"
	RemoteCompleted  RemoteStatus = "COMPLETED"
)

// NormalizeRemoteStatus upper-cases and trims a raw status string.
func NormalizeRemoteStatus(raw string) RemoteStatus {
	return RemoteStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsSuccess reports whether the remote status signals a finished transcription.
func (s RemoteStatus) IsSuccess() bool {
	return s == RemoteSucceeded || s == RemoteCompleted
}

// ChunkStatus maps a remote status to the chunk state it drives.
// The boolean is false for unknown statuses and for the success statuses,
// which go through the merge path instead of a plain status change.
func (s RemoteStatus) ChunkStatus() (ChunkStatus, bool) {
	switch s {
	case RemoteInQueue:
		return ChunkQueuedRemote, true
	case RemoteInProgress:
		return ChunkInProgress, true
	case RemoteFailed:
		return ChunkFailed, true
	case RemoteCancelled:
		return ChunkCancelled, true
	case RemoteTimedOut:
		return ChunkTimedOut, true
	}
	return "", false
}

// CallbackPayload is the body the remote transcriber posts to the webhook.
type CallbackPayload struct {
	ID     string               `json:"id"`
	Status string               `json:"status"`
	Output *TranscriptionResult `json:"output,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// CallbackRef correlates a callback with its chunk. It is decoded from the
// webhook URL, never from the payload.
type CallbackRef struct {
	SessionID string
	Seq       int
	StartMs   int64
	EndMs     int64
}
