package domain

import "time"

// SegmentStatus is the summarization state of a segment.
type SegmentStatus string

// Segment summarization states.
const (
	SegmentPending     SegmentStatus = "PENDING"
	SegmentSummarizing SegmentStatus = "SUMMARIZING"
	SegmentSucceeded   SegmentStatus = "SUCCEEDED"
	SegmentFailed      SegmentStatus = "FAILED"
)

// Segment is one cut of a session's rolling transcript buffer.
// It is keyed by (SessionID, Index); indices are contiguous from zero.
type Segment struct {
	// SessionID is the owning session.
	SessionID string

	// Index is the position of the segment within the session.
	Index int

	// Status is the summarization state.
	Status SegmentStatus

	// TokenCount is the rolling token count at the time of the cut.
	TokenCount int

	// InputKey is the object key of the segment's transcript text.
	InputKey string

	// SummaryKey is the object key of the summarizer's result, once recorded.
	SummaryKey string

	// StartMs and EndMs are reserved time bounds; the merge path does not set them.
	StartMs *int64
	EndMs   *int64

	// ErrorMessage describes the last summarization failure, if any.
	ErrorMessage string

	// CreatedAt is when the segment was cut.
	CreatedAt time.Time

	// UpdatedAt is when the segment was last written.
	UpdatedAt time.Time
}

// HasSummary reports whether a summary has been recorded for the segment.
func (s *Segment) HasSummary() bool {
	return s.SummaryKey != ""
}
