package domain

import "time"

// SessionStatus is the lifecycle state of a recording session.
type SessionStatus string

// Session lifecycle states.
const (
	// SessionRecording is the implicit state before any chunk arrives.
	SessionRecording SessionStatus = "RECORDING"
	// SessionTranscribing is set on the first upload or first chunk success.
	SessionTranscribing SessionStatus = "TRANSCRIBING"
	// SessionFinalizing is set when finalize is requested.
	SessionFinalizing SessionStatus = "FINALIZING"
	// SessionComplete is set once the finalizer pipeline has run.
	SessionComplete SessionStatus = "COMPLETE"
	// SessionError is set by external collaborators on abnormal termination.
	SessionError SessionStatus = "ERROR"
	// SessionCancelled is set by external collaborators on abnormal termination.
	SessionCancelled SessionStatus = "CANCELLED"
)

// IsValid reports whether the status is one of the known session states.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionRecording, SessionTranscribing, SessionFinalizing,
		SessionComplete, SessionError, SessionCancelled:
		return true
	}
	return false
}

// BusinessIDs carries optional foreign identifiers attached to a session.
// They have no behaviour inside the pipeline and are forwarded to the finalizer.
type BusinessIDs struct {
	TherapistID    *int64 `json:"therapist_id,omitempty"`
	PatientID      *int64 `json:"patient_id,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
	AppointmentID  *int64 `json:"appointment_id,omitempty"`
}

// Merge overlays every non-nil identifier from other onto b.
func (b *BusinessIDs) Merge(other BusinessIDs) {
	if other.TherapistID != nil {
		b.TherapistID = other.TherapistID
	}
	if other.PatientID != nil {
		b.PatientID = other.PatientID
	}
	if other.OrganizationID != nil {
		b.OrganizationID = other.OrganizationID
	}
	if other.AppointmentID != nil {
		b.AppointmentID = other.AppointmentID
	}
}

// Session is one recording. It owns the rolling transcript buffer and the
// dedup watermark used when merging chunk transcripts.
type Session struct {
	// ID is the caller-supplied opaque session identifier.
	ID string

	// Status is the current lifecycle state.
	Status SessionStatus

	// BusinessIDs are optional foreign identifiers.
	BusinessIDs

	// RollingText is merged transcript text not yet cut into a segment.
	RollingText string

	// RollingTokenCount is the token estimate of RollingText.
	RollingTokenCount int

	// NextSegmentIndex is the index the next cut segment receives. Only increases.
	NextSegmentIndex int

	// LastKeptEndSeconds is the dedup watermark: the latest word end time,
	// in seconds since session start, already merged. Only increases.
	LastKeptEndSeconds float64

	// EndRequested is set once finalize has been invoked.
	EndRequested bool

	// FinalSummaryKey is the object key of the consolidated summary, if written.
	FinalSummaryKey string

	// FinalResultKey is the object key of the finalizer's result, if written.
	FinalResultKey string

	// CreatedAt is when the session record was created.
	CreatedAt time.Time

	// UpdatedAt is when the session record was last written.
	UpdatedAt time.Time

	// Version is the stored revision this copy was read at; 0 means not yet
	// stored. Stores reject writes from a stale copy with ErrConflict.
	Version int64
}

// NewSession returns a session in the TRANSCRIBING state with empty rolling state.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		Status:    SessionTranscribing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AcceptsChunks reports whether further chunk completions may be merged.
func (s *Session) AcceptsChunks() bool {
	return !s.EndRequested
}
