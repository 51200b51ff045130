package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "sessions/s1/raw/chunk-3-9000-12000.webm", RawAudioKey("s1", 3, 9000, 12000, "webm"))
	assert.Equal(t, "sessions/s1/raw/chunk-3-9000-12000.wav", RawAudioKey("s1", 3, 9000, 12000, ".wav"))
	assert.Equal(t, "sessions/s1/raw/chunk-0-0-1.bin", RawAudioKey("s1", 0, 0, 1, ""))
	assert.Equal(t, "sessions/s1/transcripts/chunk-3.json", TranscriptKey("s1", 3))
	assert.Equal(t, "sessions/s1/segments/segment-0-input.txt", SegmentInputKey("s1", 0))
	assert.Equal(t, "sessions/s1/segments/segment-7-summary.json", SegmentSummaryKey("s1", 7))
	assert.Equal(t, "sessions/s1/final/summary.json", FinalSummaryKey("s1"))
	assert.Equal(t, "sessions/s1/final/result.json", FinalResultKey("s1"))
}

func TestComputeProgress(t *testing.T) {
	session := &Session{ID: "s1", Status: SessionTranscribing}
	chunks := []Chunk{
		{Status: ChunkSucceeded},
		{Status: ChunkSucceeded},
		{Status: ChunkFailed},
		{Status: ChunkTimedOut},
		{Status: ChunkCancelled},
		{Status: ChunkInProgress},
		{Status: ChunkUploaded},
		{Status: ChunkRetrying},
	}

	p := ComputeProgress(session, chunks, 2)

	assert.Equal(t, "s1", p.SessionID)
	assert.Equal(t, 8, p.Total)
	assert.Equal(t, 2, p.Succeeded)
	assert.Equal(t, 3, p.Failed)
	assert.Equal(t, 3, p.Pending)
	assert.Equal(t, 62, p.Percent)
	assert.Equal(t, 2, p.Segments)
	assert.Equal(t, "TRANSCRIBING", p.Status)
}

func TestComputeProgress_Empty(t *testing.T) {
	p := ComputeProgress(nil, nil, 0)
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.Percent)
}

func TestBusinessIDs_Merge(t *testing.T) {
	one, two := int64(1), int64(2)
	ids := BusinessIDs{TherapistID: &one}
	ids.Merge(BusinessIDs{PatientID: &two})

	assert.Equal(t, int64(1), *ids.TherapistID)
	assert.Equal(t, int64(2), *ids.PatientID)
	assert.Nil(t, ids.OrganizationID)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Segmentation.TokenThreshold = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput)

	cfg = DefaultConfig()
	cfg.Queue.Driver = "kafka"
	assert.ErrorIs(t, cfg.Validate(), ErrUnsupportedType)

	cfg = DefaultConfig()
	cfg.Objects.Driver = DriverS3
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput)
}
