package memory

import (
	"context"
	"fmt"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.EntityStore = (*Store)(nil)

// Store combines the in-memory session, chunk and segment stores.
type Store struct {
	*SessionStore
	*ChunkStore
	*SegmentStore
}

// NewStore creates an empty in-memory entity store.
func NewStore() *Store {
	return &Store{
		SessionStore: NewSessionStore(),
		ChunkStore:   NewChunkStore(),
		SegmentStore: NewSegmentStore(),
	}
}

// CommitSession applies commit atomically. The three store locks are always
// taken in the same order.
func (s *Store) CommitSession(_ context.Context, commit driven.SessionCommit) error {
	if commit.Session == nil {
		return fmt.Errorf("%w: commit without session", domain.ErrInvalidInput)
	}
	s.SessionStore.mu.Lock()
	defer s.SessionStore.mu.Unlock()
	s.SegmentStore.mu.Lock()
	defer s.SegmentStore.mu.Unlock()
	s.ChunkStore.mu.Lock()
	defer s.ChunkStore.mu.Unlock()

	if err := s.SessionStore.checkVersion(commit.Session); err != nil {
		return err
	}
	if commit.Segment != nil && s.SegmentStore.taken(commit.Segment) {
		return fmt.Errorf("segment %d of %s: %w", commit.Segment.Index, commit.Segment.SessionID, domain.ErrAlreadyExists)
	}
	if commit.Chunk != nil {
		if err := s.ChunkStore.checkVersion(commit.Chunk); err != nil {
			return err
		}
	}

	s.SessionStore.put(commit.Session)
	if commit.Segment != nil {
		s.SegmentStore.segments[segmentKey{commit.Segment.SessionID, commit.Segment.Index}] = *commit.Segment
	}
	if commit.Chunk != nil {
		s.ChunkStore.put(commit.Chunk)
	}
	return nil
}
