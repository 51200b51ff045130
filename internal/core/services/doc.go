// Package services implements the driving port interfaces.
// Services contain the stitching pipeline and orchestrate
// calls to driven ports (adapters).
//
// Every mutation of a session's entities runs under a per-session
// KeyedMutex held by the Orchestrator. The Dispatcher, SubmissionWorker,
// CallbackIngestor and Finalizer all reach storage through it.
//
// Services are pure Go with no CGO or external dependencies.
package services
