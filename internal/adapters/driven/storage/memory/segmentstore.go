package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// Ensure SegmentStore implements the interface.
var _ driven.SegmentStore = (*SegmentStore)(nil)

type segmentKey struct {
	sessionID string
	index     int
}

// SegmentStore is an in-memory implementation of driven.SegmentStore.
type SegmentStore struct {
	mu       sync.RWMutex
	segments map[segmentKey]domain.Segment
}

// NewSegmentStore creates a new in-memory segment store.
func NewSegmentStore() *SegmentStore {
	return &SegmentStore{
		segments: make(map[segmentKey]domain.Segment),
	}
}

// GetSegment retrieves a segment.
func (s *SegmentStore) GetSegment(_ context.Context, sessionID string, index int) (*domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segment, ok := s.segments[segmentKey{sessionID, index}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &segment, nil
}

// CreateSegment inserts a new segment.
func (s *SegmentStore) CreateSegment(_ context.Context, segment domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := segmentKey{segment.SessionID, segment.Index}
	if _, ok := s.segments[key]; ok {
		return domain.ErrAlreadyExists
	}
	s.segments[key] = segment
	return nil
}

// taken requires s.mu.
func (s *SegmentStore) taken(segment *domain.Segment) bool {
	_, ok := s.segments[segmentKey{segment.SessionID, segment.Index}]
	return ok
}

// SaveSegment stores or updates a segment.
func (s *SegmentStore) SaveSegment(_ context.Context, segment domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[segmentKey{segment.SessionID, segment.Index}] = segment
	return nil
}

// ListSegments returns all segments of a session ordered by index.
func (s *SegmentStore) ListSegments(_ context.Context, sessionID string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Segment, 0)
	for key, segment := range s.segments {
		if key.sessionID == sessionID {
			result = append(result, segment)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})
	return result, nil
}
