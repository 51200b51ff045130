package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates a write was based on a stale copy of the record.
	ErrConflict = errors.New("version conflict")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedPayload indicates an external collaborator returned a payload
	// that could not be interpreted (missing fields, invalid JSON).
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrSessionEnded indicates the session no longer accepts chunk completions.
	ErrSessionEnded = errors.New("session ended")

	// ErrNotRetryable indicates a chunk is not in a state that allows a retry.
	ErrNotRetryable = errors.New("chunk not retryable")

	// ErrUnsupportedType indicates an unknown adapter driver was configured.
	ErrUnsupportedType = errors.New("unsupported type")
)

// Pipeline stages reported in StageError.
const (
	StagePersistTranscript = "persist_transcript"
	StageMarkChunk         = "mark_chunk"
	StageLoadSession       = "load_session"
	StageMerge             = "merge"
	StageSaveSession       = "save_session"
	StageCreateSegment     = "create_segment"
	StagePersistInput      = "persist_segment_input"
	StageSummarize         = "summarize"
	StageCombine           = "combine_summaries"
	StageFinalize          = "finalize"
	StageUpload            = "upload"
	StageEnqueue           = "enqueue"
	StageSubmit            = "submit"
)

// StageError pinpoints which session, chunk or segment failed and at which stage.
type StageError struct {
	SessionID string
	Seq       *int
	Segment   *int
	Stage     string
	Err       error
}

func (e *StageError) Error() string {
	where := "session " + e.SessionID
	if e.Seq != nil {
		where += fmt.Sprintf(" seq %d", *e.Seq)
	}
	if e.Segment != nil {
		where += fmt.Sprintf(" segment %d", *e.Segment)
	}
	return fmt.Sprintf("%s: %s: %v", where, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ChunkStageError wraps err with chunk context.
func ChunkStageError(sessionID string, seq int, stage string, err error) error {
	return &StageError{SessionID: sessionID, Seq: &seq, Stage: stage, Err: err}
}

// SegmentStageError wraps err with segment context.
func SegmentStageError(sessionID string, index int, stage string, err error) error {
	return &StageError{SessionID: sessionID, Segment: &index, Stage: stage, Err: err}
}

// SessionStageError wraps err with session context.
func SessionStageError(sessionID, stage string, err error) error {
	return &StageError{SessionID: sessionID, Stage: stage, Err: err}
}
