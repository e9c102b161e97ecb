package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStorage keeps documents in process memory. Values are stored
// encoded, so callers never share structs with the store.
type MemoryStorage struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{docs: make(map[string][]byte)}
}

// Read implements Storage.
func (s *MemoryStorage) Read(_ context.Context, keys []string) (map[string]json.RawMessage, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if data, ok := s.docs[k]; ok {
			out[k] = append(json.RawMessage(nil), data...)
		}
	}
	return out, nil
}

// Write implements Storage.
func (s *MemoryStorage) Write(_ context.Context, changes map[string]any) error {
	encoded, err := encode(changes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range encoded {
		s.docs[k] = v
	}
	return nil
}

// Delete implements Storage.
func (s *MemoryStorage) Delete(_ context.Context, keys []string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.docs, k)
	}
	return nil
}

// Len returns the number of stored documents.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Ping implements Pinger. Memory is always available.
func (s *MemoryStorage) Ping(context.Context) error { return nil }
