// Package memory provides an in-process Driver used in tests and as a
// fallback when no durable backend is configured.
package memory

import (
	"context"
	"sync"
)

// Store keeps collection payloads in a map. Contents vanish on restart.
type Store struct {
	mu      sync.RWMutex
	buckets map[string][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{buckets: make(map[string][]byte)}
}

// Load returns the payload stored under key, if any.
func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.buckets[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

// Save stores payload under key, replacing any previous value.
func (s *Store) Save(_ context.Context, key string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.mu.Lock()
	s.buckets[key] = cp
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
