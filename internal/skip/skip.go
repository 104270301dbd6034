// Package skip tracks image pairs the user dismissed as not duplicates.
package skip

import (
	"context"
	"sync"

	"mediadupes/internal/models"
)

// Set is a snapshot of skipped pairs keyed by canonical pair key
type Set map[string]struct{}

// NewSet builds a set from canonical pair keys
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// IsSkipped reports whether the unordered pair (a, b) is in the set
func (s Set) IsSkipped(a, b string) bool {
	if s == nil {
		return false
	}
	_, ok := s[models.PairKey(a, b)]
	return ok
}

// Add inserts the unordered pair (a, b)
func (s Set) Add(a, b string) {
	s[models.PairKey(a, b)] = struct{}{}
}

// Len returns the number of skipped pairs
func (s Set) Len() int {
	return len(s)
}

// Store persists skipped pairs across runs
type Store interface {
	// Load returns every skipped pair
	Load(ctx context.Context) (Set, error)
	// Skip records the unordered pair (a, b)
	Skip(ctx context.Context, a, b string) error
	// Clear removes every skipped pair
	Clear(ctx context.Context) error
	Close() error
}

// MemoryStore is a Store that lives only as long as the process
type MemoryStore struct {
	mu  sync.Mutex
	set Set
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{set: Set{}}
}

// Load returns a copy of the stored pairs
func (m *MemoryStore) Load(ctx context.Context) (Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(Set, len(m.set))
	for k := range m.set {
		out[k] = struct{}{}
	}
	return out, nil
}

// Skip records the unordered pair (a, b)
func (m *MemoryStore) Skip(ctx context.Context, a, b string) error {
	m.mu.Lock()
	m.set.Add(a, b)
	m.mu.Unlock()
	return nil
}

// Clear removes every pair
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.set = Set{}
	m.mu.Unlock()
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
