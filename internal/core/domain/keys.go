package domain

import (
	"fmt"
	"strings"
)

// Object storage key layout. All keys live under sessions/{sessionId}/.

// RawAudioKey is where an uploaded chunk's audio bytes are stored.
func RawAudioKey(sessionID string, seq int, startMs, endMs int64, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("sessions/%s/raw/chunk-%d-%d-%d.%s", sessionID, seq, startMs, endMs, ext)
}

// TranscriptKey is where a chunk's raw transcription result is stored.
func TranscriptKey(sessionID string, seq int) string {
	return fmt.Sprintf("sessions/%s/transcripts/chunk-%d.json", sessionID, seq)
}

// SegmentInputKey is where a segment's transcript text is stored.
func SegmentInputKey(sessionID string, index int) string {
	return fmt.Sprintf("sessions/%s/segments/segment-%d-input.txt", sessionID, index)
}

// SegmentSummaryKey is where a segment's summarizer result is stored.
func SegmentSummaryKey(sessionID string, index int) string {
	return fmt.Sprintf("sessions/%s/segments/segment-%d-summary.json", sessionID, index)
}

// FinalSummaryKey is where the consolidated session summary is stored.
func FinalSummaryKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/final/summary.json", sessionID)
}

// FinalResultKey is where the finalizer's result is stored.
func FinalResultKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/final/result.json", sessionID)
}

// Content types used for stored objects.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)
