package driving

import (
	"context"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// QueryService is the read side used by the HTTP, CLI and MCP surfaces.
type QueryService interface {
	// Session returns a session by ID.
	Session(ctx context.Context, id string) (*domain.Session, error)

	// Chunks returns a session's chunks ordered by seq.
	Chunks(ctx context.Context, sessionID string) ([]domain.Chunk, error)

	// Segments returns a session's segments ordered by index.
	Segments(ctx context.Context, sessionID string) ([]domain.Segment, error)

	// Progress returns the transcription rollup for a session.
	Progress(ctx context.Context, sessionID string) (*domain.Progress, error)

	// Object reads a stored artifact such as a summary.
	Object(ctx context.Context, key string) ([]byte, error)
}
