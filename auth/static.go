package auth

import (
	"context"
	"sync"
)

// StaticKeys is a fixed in-memory key set for development and tests,
// seeded from configuration. Safe for concurrent use.
type StaticKeys struct {
	mu   sync.RWMutex
	keys map[string]bool
}

// NewStaticKeys builds a store with every given key active.
func NewStaticKeys(keys ...string) *StaticKeys {
	s := &StaticKeys{keys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		s.keys[k] = true
	}
	return s
}

// IsActive reports whether the key is present and active. Never errors.
func (s *StaticKeys) IsActive(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[key], nil
}

// SetActive adds the key or flips its active flag.
func (s *StaticKeys) SetActive(key string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = active
}

// Remove forgets the key entirely.
func (s *StaticKeys) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}
