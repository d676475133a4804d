package storage

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is an in-memory implementation of BlobStore.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPuts makes every Put return ErrStorage, for exercising the
	// capture rollback path.
	FailPuts bool
}

// NewInMemoryStore creates a new in-memory blob store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string][]byte)}
}

// Put stores the blob and returns a fake download URL.
func (s *InMemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPuts {
		return "", fmt.Errorf("%w: injected failure for %q", ErrStorage, key)
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = copied
	return "https://storage.invalid/" + key, nil
}

// Get retrieves the blob stored under key.
func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrObjectNotFound, key)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Len returns the number of stored objects. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
