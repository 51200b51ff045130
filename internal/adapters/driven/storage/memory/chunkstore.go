package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

type chunkKey struct {
	sessionID string
	seq       int
}

// ChunkStore is an in-memory implementation of driven.ChunkStore.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[chunkKey]domain.Chunk
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[chunkKey]domain.Chunk),
	}
}

// GetChunk retrieves a chunk.
func (s *ChunkStore) GetChunk(_ context.Context, sessionID string, seq int) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[chunkKey{sessionID, seq}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &chunk, nil
}

// SaveChunk writes chunk if its Version is current and advances it.
func (s *ChunkStore) SaveChunk(_ context.Context, chunk *domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(chunk); err != nil {
		return err
	}
	s.put(chunk)
	return nil
}

// checkVersion requires s.mu.
func (s *ChunkStore) checkVersion(chunk *domain.Chunk) error {
	stored := s.chunks[chunkKey{chunk.SessionID, chunk.Seq}]
	if stored.Version != chunk.Version {
		return fmt.Errorf("chunk %s/%d is at version %d, not %d: %w",
			chunk.SessionID, chunk.Seq, stored.Version, chunk.Version, domain.ErrConflict)
	}
	return nil
}

// put requires s.mu.
func (s *ChunkStore) put(chunk *domain.Chunk) {
	chunk.Version++
	s.chunks[chunkKey{chunk.SessionID, chunk.Seq}] = *chunk
}

// ListChunks returns all chunks of a session ordered by seq.
func (s *ChunkStore) ListChunks(_ context.Context, sessionID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Chunk, 0)
	for key, chunk := range s.chunks {
		if key.sessionID == sessionID {
			result = append(result, chunk)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}
