// Package domain defines the core business entities for stitch.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Session: One recording, owning the rolling transcript and dedup watermark
//   - Chunk: An uploaded audio fragment and its transcription state
//   - Segment: A cut of the rolling transcript, summarized independently
//   - TranscriptionResult: Word-timestamped output of the remote transcriber
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
