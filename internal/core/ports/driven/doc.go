// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EntityStore: Session, chunk and segment persistence
//   - ObjectStore: Raw audio, transcripts, segment inputs and summaries
//   - WorkQueue: Buffers uploaded chunks for the submission worker
//   - RemoteTranscriber: Submits audio to the transcription worker
//   - Summarizer: Per-segment summary function
//   - Finalizer: End-of-session function
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
