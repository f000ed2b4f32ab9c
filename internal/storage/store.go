package storage

import (
	"sync"

	"coherence/internal/resolve"
)

// VersionStore persists the set of distinct observed versions per key, one
// slot per source. It backs the engine's default conflict detector and is
// the narrow interface behind which durable persistence lives.
type VersionStore interface {
	// Append records an observed version. An existing slot for the same
	// source is only overwritten by an equal or newer version number.
	Append(key string, tag resolve.VersionTag) error
	// Versions returns the latest observed version per source for key.
	// A key with no observations returns an empty slice.
	Versions(key string) ([]resolve.VersionTag, error)
	// Reset replaces the key's version set, typically collapsing it to a
	// single winner after conflict resolution.
	Reset(key string, tags ...resolve.VersionTag) error
	// Close releases underlying resources.
	Close() error
}

// MemoryStore is an in-memory VersionStore. It is thread-safe and returns
// copies so callers can never mutate stored state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]resolve.VersionTag // key -> sourceID -> latest
}

// NewMemoryStore creates an empty in-memory version store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]resolve.VersionTag),
	}
}

// Append records an observed version for the key's source slot.
func (s *MemoryStore) Append(key string, tag resolve.VersionTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, exists := s.data[key]
	if !exists {
		slots = make(map[string]resolve.VersionTag)
		s.data[key] = slots
	}

	if existing, seen := slots[tag.SourceID]; seen && existing.Version > tag.Version {
		return nil // stale observation
	}
	slots[tag.SourceID] = copyTag(tag)
	return nil
}

// Versions returns the latest observed version per source, timestamp order
// unspecified (callers sort).
func (s *MemoryStore) Versions(key string) ([]resolve.VersionTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := s.data[key]
	out := make([]resolve.VersionTag, 0, len(slots))
	for _, tag := range slots {
		out = append(out, copyTag(tag))
	}
	return out, nil
}

// Reset replaces the key's version set.
func (s *MemoryStore) Reset(key string, tags ...resolve.VersionTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tags) == 0 {
		delete(s.data, key)
		return nil
	}

	slots := make(map[string]resolve.VersionTag, len(tags))
	for _, tag := range tags {
		slots[tag.SourceID] = copyTag(tag)
	}
	s.data[key] = slots
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func copyTag(tag resolve.VersionTag) resolve.VersionTag {
	dup := tag
	dup.Data = append([]byte(nil), tag.Data...)
	return dup
}
