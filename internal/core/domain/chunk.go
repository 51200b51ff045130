package domain

import "time"

// ChunkStatus is the transcription lifecycle state of an uploaded chunk.
type ChunkStatus string

// Chunk lifecycle states.
const (
	ChunkUploaded     ChunkStatus = "UPLOADED"
	ChunkEnqueued     ChunkStatus = "ENQUEUED"
	ChunkQueuedRemote ChunkStatus = "QUEUED_REMOTE"
	ChunkInProgress   ChunkStatus = "IN_PROGRESS"
	ChunkSucceeded    ChunkStatus = "SUCCEEDED"
	ChunkFailed       ChunkStatus = "FAILED"
	ChunkCancelled    ChunkStatus = "CANCELLED"
	ChunkTimedOut     ChunkStatus = "TIMED_OUT"
	ChunkRetrying     ChunkStatus = "RETRYING"
)

// chunkRank orders the non-terminal states along the forward path.
// Terminal states share the highest rank.
var chunkRank = map[ChunkStatus]int{
	ChunkUploaded:     0,
	ChunkRetrying:     1,
	ChunkEnqueued:     2,
	ChunkQueuedRemote: 3,
	ChunkInProgress:   4,
	ChunkSucceeded:    5,
	ChunkFailed:       5,
	ChunkCancelled:    5,
	ChunkTimedOut:     5,
}

// IsValid reports whether the status is a known chunk state.
func (s ChunkStatus) IsValid() bool {
	_, ok := chunkRank[s]
	return ok
}

// IsTerminal reports whether no further remote progress is expected.
func (s ChunkStatus) IsTerminal() bool {
	switch s {
	case ChunkSucceeded, ChunkFailed, ChunkCancelled, ChunkTimedOut:
		return true
	}
	return false
}

// IsRetryable reports whether a chunk in this state may be re-attempted.
func (s ChunkStatus) IsRetryable() bool {
	switch s {
	case ChunkFailed, ChunkCancelled, ChunkTimedOut:
		return true
	}
	return false
}

// IsFailure reports whether the state counts as a failed chunk in progress rollups.
func (s ChunkStatus) IsFailure() bool {
	return s.IsRetryable()
}

// CanTransitionTo reports whether moving from s to next follows the chunk
// state machine. Remote callbacks may skip intermediate states, so any forward
// move is legal. Terminal states only leave through RETRYING, and SUCCEEDED
// never leaves.
func (s ChunkStatus) CanTransitionTo(next ChunkStatus) bool {
	if !s.IsValid() || !next.IsValid() || s == next {
		return false
	}
	if s.IsTerminal() {
		return s.IsRetryable() && next == ChunkRetrying
	}
	return chunkRank[next] > chunkRank[s]
}

// Chunk is one uploaded audio fragment of a session.
// It is keyed by (SessionID, Seq); Seq is caller-assigned and may arrive out of order.
type Chunk struct {
	// SessionID is the owning session.
	SessionID string

	// Seq is the caller-assigned sequence number.
	Seq int

	// AudioKey is the object storage key of the raw audio.
	AudioKey string

	// StartMs is the chunk start offset from session start, in milliseconds.
	StartMs int64

	// EndMs is the chunk end offset from session start, in milliseconds.
	EndMs int64

	// Status is the current transcription state.
	Status ChunkStatus

	// Attempts counts submissions to the remote transcriber.
	Attempts int

	// ErrorCode is a short machine-readable failure code, if any.
	ErrorCode string

	// ErrorMessage is a human-readable failure description, if any.
	ErrorMessage string

	// TranscriptKey is the object key of the raw transcription result once recorded.
	TranscriptKey string

	// Language is the language detected by the transcriber.
	Language string

	// RemoteID is the job identifier assigned by the remote worker.
	RemoteID string

	// CreatedAt is when the chunk was accepted.
	CreatedAt time.Time

	// UpdatedAt is when the chunk was last written.
	UpdatedAt time.Time

	// Version is the stored revision this copy was read at; 0 means not yet stored.
	Version int64
}

// IsTranscribed reports whether the success side effects are already recorded.
func (c *Chunk) IsTranscribed() bool {
	return c.Status == ChunkSucceeded && c.TranscriptKey != ""
}

// ChunkStatusExtra carries optional metadata applied alongside a status change.
// Nil fields leave the stored values untouched.
type ChunkStatusExtra struct {
	ErrorCode     *string
	ErrorMessage  *string
	RemoteID      *string
	TranscriptKey *string
	Language      *string
}

// Apply copies the set fields onto c.
func (e *ChunkStatusExtra) Apply(c *Chunk) {
	if e == nil {
		return
	}
	if e.ErrorCode != nil {
		c.ErrorCode = *e.ErrorCode
	}
	if e.ErrorMessage != nil {
		c.ErrorMessage = *e.ErrorMessage
	}
	if e.RemoteID != nil {
		c.RemoteID = *e.RemoteID
	}
	if e.TranscriptKey != nil {
		c.TranscriptKey = *e.TranscriptKey
	}
	if e.Language != nil {
		c.Language = *e.Language
	}
}

// ChunkError builds an extra carrying an error code and message.
func ChunkError(code, message string) *ChunkStatusExtra {
	return &ChunkStatusExtra{ErrorCode: &code, ErrorMessage: &message}
}
