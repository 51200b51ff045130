package httpapi

import (
	"time"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// sessionView is the wire form of a session.
type sessionView struct {
	ID                 string             `json:"id"`
	Status             string             `json:"status"`
	BusinessIDs        domain.BusinessIDs `json:"business_ids"`
	RollingTokenCount  int                `json:"rolling_token_count"`
	NextSegmentIndex   int                `json:"next_segment_index"`
	LastKeptEndSeconds float64            `json:"last_kept_end_seconds"`
	EndRequested       bool               `json:"end_requested"`
	FinalSummaryKey    string             `json:"final_summary_key,omitempty"`
	FinalResultKey     string             `json:"final_result_key,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func toSessionView(s *domain.Session) sessionView {
	return sessionView{
		ID:                 s.ID,
		Status:             string(s.Status),
		BusinessIDs:        s.BusinessIDs,
		RollingTokenCount:  s.RollingTokenCount,
		NextSegmentIndex:   s.NextSegmentIndex,
		LastKeptEndSeconds: s.LastKeptEndSeconds,
		EndRequested:       s.EndRequested,
		FinalSummaryKey:    s.FinalSummaryKey,
		FinalResultKey:     s.FinalResultKey,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// chunkView is the wire form of a chunk.
type chunkView struct {
	Seq           int       `json:"seq"`
	Status        string    `json:"status"`
	StartMs       int64     `json:"start_ms"`
	EndMs         int64     `json:"end_ms"`
	Attempts      int       `json:"attempts"`
	AudioKey      string    `json:"audio_key,omitempty"`
	TranscriptKey string    `json:"transcript_key,omitempty"`
	Language      string    `json:"language,omitempty"`
	RemoteID      string    `json:"remote_id,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toChunkView(c *domain.Chunk) chunkView {
	return chunkView{
		Seq:           c.Seq,
		Status:        string(c.Status),
		StartMs:       c.StartMs,
		EndMs:         c.EndMs,
		Attempts:      c.Attempts,
		AudioKey:      c.AudioKey,
		TranscriptKey: c.TranscriptKey,
		Language:      c.Language,
		RemoteID:      c.RemoteID,
		ErrorCode:     c.ErrorCode,
		ErrorMessage:  c.ErrorMessage,
		UpdatedAt:     c.UpdatedAt,
	}
}

// segmentView is the wire form of a segment.
type segmentView struct {
	Index        int       `json:"index"`
	Status       string    `json:"status"`
	TokenCount   int       `json:"token_count"`
	InputKey     string    `json:"input_key"`
	SummaryKey   string    `json:"summary_key,omitempty"`
	StartMs      *int64    `json:"start_ms,omitempty"`
	EndMs        *int64    `json:"end_ms,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toSegmentView(s *domain.Segment) segmentView {
	return segmentView{
		Index:        s.Index,
		Status:       string(s.Status),
		TokenCount:   s.TokenCount,
		InputKey:     s.InputKey,
		SummaryKey:   s.SummaryKey,
		StartMs:      s.StartMs,
		EndMs:        s.EndMs,
		ErrorMessage: s.ErrorMessage,
		UpdatedAt:    s.UpdatedAt,
	}
}
