package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// Ensure ObjectStore implements the interface.
var _ driven.ObjectStore = (*ObjectStore)(nil)

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// ObjectStore is an in-memory implementation of driven.ObjectStore.
// Presigned URLs use the memory:// scheme and are only meaningful in tests.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	puts    map[string]int
}

// NewObjectStore creates a new in-memory object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects: make(map[string]Object),
		puts:    make(map[string]int),
	}
}

// Put writes data under key, overwriting any existing object.
func (s *ObjectStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = Object{Data: buf, ContentType: contentType}
	s.puts[key]++
	return nil
}

// Get reads the object at key.
func (s *ObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	buf := make([]byte, len(obj.Data))
	copy(buf, obj.Data)
	return buf, nil
}

// PresignedGetURL returns a memory:// URL for an existing object.
func (s *ObjectStore) PresignedGetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	q := url.Values{}
	q.Set("ttl", ttl.String())
	return "memory:///" + key + "?" + q.Encode(), nil
}

// Object returns the stored object at key, for inspection.
func (s *ObjectStore) Object(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// PutCount returns how many times key has been written.
func (s *ObjectStore) PutCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts[key]
}

// TotalPuts returns the number of writes across all keys.
func (s *ObjectStore) TotalPuts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.puts {
		n += c
	}
	return n
}

// Len returns the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
