package mcp

import (
	"context"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	session  *domain.Session
	chunks   []domain.Chunk
	segments []domain.Segment
	progress *domain.Progress
	objects  map[string][]byte
	err      error
}

func (m *mockQueryService) Session(_ context.Context, _ string) (*domain.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.session == nil {
		return nil, domain.ErrNotFound
	}
	return m.session, nil
}

func (m *mockQueryService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

func (m *mockQueryService) Segments(_ context.Context, _ string) ([]domain.Segment, error) {
	return m.segments, m.err
}

func (m *mockQueryService) Progress(_ context.Context, _ string) (*domain.Progress, error) {
	return m.progress, m.err
}

func (m *mockQueryService) Object(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}
