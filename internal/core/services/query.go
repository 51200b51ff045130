package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/core/ports/driving"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService serves read-only views of sessions.
type QueryService struct {
	store   driven.EntityStore
	objects driven.ObjectStore
}

// NewQueryService creates a query service.
func NewQueryService(store driven.EntityStore, objects driven.ObjectStore) *QueryService {
	return &QueryService{store: store, objects: objects}
}

// Session returns a session by ID.
func (q *QueryService) Session(ctx context.Context, id string) (*domain.Session, error) {
	return q.store.GetSession(ctx, id)
}

// Chunks returns a session's chunks ordered by seq.
func (q *QueryService) Chunks(ctx context.Context, sessionID string) ([]domain.Chunk, error) {
	return q.store.ListChunks(ctx, sessionID)
}

// Segments returns a session's segments ordered by index.
func (q *QueryService) Segments(ctx context.Context, sessionID string) ([]domain.Segment, error) {
	return q.store.ListSegments(ctx, sessionID)
}

// Progress returns the chunk rollup for a session.
func (q *QueryService) Progress(ctx context.Context, sessionID string) (*domain.Progress, error) {
	session, err := q.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	chunks, err := q.store.ListChunks(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	segments, err := q.store.ListSegments(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	p := domain.ComputeProgress(session, chunks, len(segments))
	return &p, nil
}

// Object reads a stored artifact.
func (q *QueryService) Object(ctx context.Context, key string) ([]byte, error) {
	return q.objects.Get(ctx, key)
}
