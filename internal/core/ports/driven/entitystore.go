package driven

import (
	"context"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// Sessions and chunks are written with optimistic concurrency: a save
// succeeds only when the copy's Version matches the stored revision (0 for
// a record that must not exist yet) and then advances Version on the copy.
// Otherwise it returns domain.ErrConflict and writes nothing. This holds
// across processes sharing one database.

// SessionStore persists session records.
type SessionStore interface {
	// GetSession retrieves a session by ID.
	// Returns domain.ErrNotFound if the session does not exist.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// CreateSessionIfAbsent inserts session unless a record with the same ID
	// already exists. It returns the stored record and whether it was created.
	// Concurrent callers racing on the same ID must all succeed.
	CreateSessionIfAbsent(ctx context.Context, session domain.Session) (*domain.Session, bool, error)

	// SaveSession writes session if its Version is current.
	// Returns domain.ErrConflict if another writer saved it first.
	SaveSession(ctx context.Context, session *domain.Session) error
}

// ChunkStore persists chunk records keyed by (session, seq).
type ChunkStore interface {
	// GetChunk retrieves a chunk.
	// Returns domain.ErrNotFound if the chunk does not exist.
	GetChunk(ctx context.Context, sessionID string, seq int) (*domain.Chunk, error)

	// SaveChunk writes chunk if its Version is current.
	// Returns domain.ErrConflict if another writer saved it first.
	SaveChunk(ctx context.Context, chunk *domain.Chunk) error

	// ListChunks returns all chunks of a session ordered by seq.
	ListChunks(ctx context.Context, sessionID string) ([]domain.Chunk, error)
}

// SegmentStore persists segment records keyed by (session, index).
type SegmentStore interface {
	// GetSegment retrieves a segment.
	// Returns domain.ErrNotFound if the segment does not exist.
	GetSegment(ctx context.Context, sessionID string, index int) (*domain.Segment, error)

	// CreateSegment inserts a new segment.
	// Returns domain.ErrAlreadyExists if the index is taken.
	CreateSegment(ctx context.Context, segment domain.Segment) error

	// SaveSegment stores or updates a segment.
	SaveSegment(ctx context.Context, segment domain.Segment) error

	// ListSegments returns all segments of a session ordered by index.
	ListSegments(ctx context.Context, sessionID string) ([]domain.Segment, error)
}

// SessionCommit is one change to a session's rolling state. Its parts are
// written together or not at all.
type SessionCommit struct {
	// Session is required and version checked.
	Session *domain.Session

	// Segment, when set, is inserted. A taken index fails the commit with
	// domain.ErrAlreadyExists.
	Segment *domain.Segment

	// Chunk, when set, is version checked and written.
	Chunk *domain.Chunk
}

// EntityStore groups the three record stores. Adapters usually implement it
// with a single backing database.
type EntityStore interface {
	SessionStore
	ChunkStore
	SegmentStore

	// CommitSession applies commit atomically and advances the versions of
	// its session and chunk. On error nothing is written and versions are
	// left unchanged.
	CommitSession(ctx context.Context, commit SessionCommit) error
}
